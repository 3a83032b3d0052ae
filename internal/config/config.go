package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RedisURL       string `env:"REDIS_URL"`
	RabbitMQURL    string `env:"RABBITMQ_URL"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`

	MailTransport   string `env:"MAIL_TRANSPORT,default=smtp"`
	MailFromAddress string `env:"MAIL_FROM_ADDRESS,required=true"`
	MailFromName    string `env:"MAIL_FROM_NAME"`
	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT,default=587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPImplicitTLS bool   `env:"SMTP_IMPLICIT_TLS,default=false"`
	AWSRegion       string `env:"AWS_REGION"`

	ReportServiceURL string `env:"REPORT_SERVICE_URL"`

	MaxAttempts          int `env:"MAX_ATTEMPTS,default=3"`
	PacingIntervalMS     int `env:"PACING_INTERVAL_MS,default=1000"`
	AttachmentTimeoutSec int `env:"ATTACHMENT_TIMEOUT_SEC,default=30"`
	AttachmentMaxBytes   int `env:"ATTACHMENT_MAX_BYTES,default=26214400"`
	ReportTimeoutSec     int `env:"REPORT_TIMEOUT_SEC,default=60"`
	SendTimeoutSec       int `env:"SEND_TIMEOUT_SEC,default=60"`
	ClaimTTLSec          int `env:"CLAIM_TTL_SEC,default=900"`
	RunLockTTLSec        int `env:"RUN_LOCK_TTL_SEC,default=3600"`
	SendRateLimit        int `env:"SEND_RATE_LIMIT,default=0"`
	SendRateWindowSec    int `env:"SEND_RATE_WINDOW_SEC,default=1"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file and then the process environment. Variables already set
// in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.MailTransport = strings.ToLower(strings.TrimSpace(cfg.MailTransport))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.MailFromAddress) == "" {
		return fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	switch c.MailTransport {
	case TransportSMTP:
		if strings.TrimSpace(c.SMTPHost) == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_TRANSPORT=smtp")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fmt.Errorf("invalid SMTP_PORT %d", c.SMTPPort)
		}
	case TransportSES:
	default:
		return fmt.Errorf("unsupported MAIL_TRANSPORT %q", c.MailTransport)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.PacingIntervalMS < 0 {
		return fmt.Errorf("PACING_INTERVAL_MS must not be negative, got %d", c.PacingIntervalMS)
	}
	if c.SendRateLimit < 0 {
		return fmt.Errorf("SEND_RATE_LIMIT must not be negative, got %d", c.SendRateLimit)
	}
	if c.SendRateLimit > 0 && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when SEND_RATE_LIMIT is set")
	}
	return nil
}

func (c *Config) PacingInterval() time.Duration {
	return time.Duration(c.PacingIntervalMS) * time.Millisecond
}

func (c *Config) AttachmentTimeout() time.Duration {
	return seconds(c.AttachmentTimeoutSec)
}

func (c *Config) ReportTimeout() time.Duration {
	return seconds(c.ReportTimeoutSec)
}

func (c *Config) SendTimeout() time.Duration {
	return seconds(c.SendTimeoutSec)
}

func (c *Config) ClaimTTL() time.Duration {
	return seconds(c.ClaimTTLSec)
}

func (c *Config) RunLockTTL() time.Duration {
	return seconds(c.RunLockTTLSec)
}

func (c *Config) SendRateWindow() time.Duration {
	return seconds(c.SendRateWindowSec)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
