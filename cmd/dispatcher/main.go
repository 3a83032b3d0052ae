package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/kursadbilgin/notification-dispatcher/internal/attachment"
	"github.com/kursadbilgin/notification-dispatcher/internal/blob"
	"github.com/kursadbilgin/notification-dispatcher/internal/config"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-dispatcher/internal/infra/redis"
	"github.com/kursadbilgin/notification-dispatcher/internal/mail"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	"github.com/kursadbilgin/notification-dispatcher/internal/report"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/service"
	"go.uber.org/zap"
)

const deadLetterConnectTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	migrate := flag.Bool("migrate", false, "apply database migrations before dispatching")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return service.ExitFailure
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Printf("failed to initialize logger: %v", err)
		return service.ExitFailure
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("postgres initialization failed", zap.Error(err))
		return service.ExitFailure
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("postgres underlying db init failed", zap.Error(err))
		return service.ExitFailure
	}
	defer sqlDB.Close()

	if *migrate {
		if err := migrations.Migrate(db); err != nil {
			logger.Error("database migrations failed", zap.Error(err))
			return service.ExitFailure
		}
		logger.Info("database migrations applied")
	}

	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	runs := repository.NewGormRunRepo(db)
	metrics := observability.NewMetrics()

	var (
		limiter ratelimit.RateLimiter
		runLock service.RunLocker
	)
	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis initialization failed", zap.Error(err))
			return service.ExitFailure
		}
		defer rdb.Close()

		lock, err := infraredis.NewRunLock(rdb, cfg.RunLockTTL())
		if err != nil {
			logger.Error("run lock initialization failed", zap.Error(err))
			return service.ExitFailure
		}
		runLock = lock

		if cfg.SendRateLimit > 0 {
			sendLimiter, err := infraredis.NewSendRateLimiter(rdb, cfg.SendRateLimit, cfg.SendRateWindow())
			if err != nil {
				logger.Error("send rate limiter initialization failed", zap.Error(err))
				return service.ExitFailure
			}
			limiter = sendLimiter
		}
	}

	transport, s3Client, err := newTransport(ctx, cfg)
	if err != nil {
		logger.Error("mail transport initialization failed", zap.Error(err))
		return service.ExitFailure
	}
	defer transport.Close()

	resolvers := blob.NewMux()
	resolvers.Handle(blob.NewHTTPResolver(), "http", "https")
	if s3Client != nil {
		resolvers.Handle(blob.NewS3Resolver(s3Client), "s3")
	}

	assembler, err := attachment.NewAssembler(resolvers, cfg.AttachmentTimeout(), int64(cfg.AttachmentMaxBytes), logger, metrics)
	if err != nil {
		logger.Error("attachment assembler initialization failed", zap.Error(err))
		return service.ExitFailure
	}

	engine, err := mail.NewEngine(transport, limiter, cfg.SendTimeout(), logger)
	if err != nil {
		logger.Error("delivery engine initialization failed", zap.Error(err))
		return service.ExitFailure
	}

	coordinator, err := service.NewQueueCoordinator(notifications, attempts, assembler, engine, service.CoordinatorConfig{
		MaxAttempts:    cfg.MaxAttempts,
		PacingInterval: cfg.PacingInterval(),
		ClaimTTL:       cfg.ClaimTTL(),
	}, logger)
	if err != nil {
		logger.Error("queue coordinator initialization failed", zap.Error(err))
		return service.ExitFailure
	}
	coordinator.SetMetrics(metrics)

	if cfg.ReportServiceURL != "" {
		injector, err := report.NewHTTPInjector(cfg.ReportServiceURL, cfg.ReportTimeout())
		if err != nil {
			logger.Error("report injector initialization failed", zap.Error(err))
			return service.ExitFailure
		}
		coordinator.SetReportInjection(repository.NewGormReportConfigRepo(db), injector)
	}

	if cfg.RabbitMQURL != "" {
		if publisher := connectDeadLetters(ctx, cfg.RabbitMQURL, logger); publisher != nil {
			defer publisher.Close()
			coordinator.SetDeadLetterPublisher(publisher)
		}
	}

	controller, err := service.NewRunController(transport, notifications, runs, coordinator, logger)
	if err != nil {
		logger.Error("run controller initialization failed", zap.Error(err))
		return service.ExitFailure
	}
	if runLock != nil {
		controller.SetRunLock(runLock)
	}
	controller.SetMetrics(metrics, cfg.PushgatewayURL)

	logger.Info("notification dispatcher started",
		zap.String("transport", transport.Name()),
		zap.Int("maxAttempts", cfg.MaxAttempts),
	)
	return controller.Run(ctx)
}

// connectDeadLetters returns nil when the broker cannot be reached in time. Dead letters are
// best-effort and the run proceeds without them.
func connectDeadLetters(ctx context.Context, url string, logger *zap.Logger) *queue.RabbitMQPublisher {
	connectCtx, cancel := context.WithTimeout(ctx, deadLetterConnectTimeout)
	defer cancel()

	rabbit, err := queue.NewRabbitMQ(connectCtx, url)
	if err != nil {
		logger.Warn("rabbitmq unavailable, dead letters disabled for this run", zap.Error(err))
		return nil
	}
	return queue.NewRabbitMQPublisher(rabbit)
}

// newTransport builds the configured mail transport. The S3 client is returned whenever AWS
// configuration was loaded so attachments can be read from buckets.
func newTransport(ctx context.Context, cfg *config.Config) (mail.Transport, blob.S3API, error) {
	from := mail.Sender{Address: cfg.MailFromAddress, Name: cfg.MailFromName}

	var s3Client blob.S3API
	if cfg.MailTransport == config.TransportSES || cfg.AWSRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)

		if cfg.MailTransport == config.TransportSES {
			transport, err := mail.NewSESTransport(ses.NewFromConfig(awsCfg), from)
			if err != nil {
				return nil, nil, err
			}
			return transport, s3Client, nil
		}
	}

	switch cfg.MailTransport {
	case config.TransportSMTP:
		transport, err := mail.NewSMTPTransport(mail.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			ImplicitTLS: cfg.SMTPImplicitTLS,
			From:        from,
		})
		if err != nil {
			return nil, nil, err
		}
		return transport, s3Client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported mail transport %q", cfg.MailTransport)
	}
}
