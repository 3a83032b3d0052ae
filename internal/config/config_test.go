package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("MAIL_FROM_ADDRESS", "noreply@example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MailTransport != TransportSMTP {
		t.Errorf("MailTransport = %s, want smtp", cfg.MailTransport)
	}
	if cfg.SMTPPort != 587 {
		t.Errorf("SMTPPort = %d, want 587", cfg.SMTPPort)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.PacingInterval() != time.Second {
		t.Errorf("PacingInterval = %s, want 1s", cfg.PacingInterval())
	}
	if cfg.AttachmentTimeout() != 30*time.Second {
		t.Errorf("AttachmentTimeout = %s, want 30s", cfg.AttachmentTimeout())
	}
	if cfg.AttachmentMaxBytes != 25<<20 {
		t.Errorf("AttachmentMaxBytes = %d, want %d", cfg.AttachmentMaxBytes, 25<<20)
	}
	if cfg.ClaimTTL() != 15*time.Minute {
		t.Errorf("ClaimTTL = %s, want 15m", cfg.ClaimTTL())
	}
	if cfg.SendRateLimit != 0 {
		t.Errorf("SendRateLimit = %d, want 0", cfg.SendRateLimit)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_TRANSPORT", " SES ")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("PACING_INTERVAL_MS", "250")
	t.Setenv("SMTP_IMPLICIT_TLS", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SEND_RATE_LIMIT", "14")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MailTransport != TransportSES {
		t.Errorf("MailTransport = %s, want ses", cfg.MailTransport)
	}
	if cfg.AWSRegion != "eu-central-1" {
		t.Errorf("AWSRegion = %s, want eu-central-1", cfg.AWSRegion)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.PacingInterval() != 250*time.Millisecond {
		t.Errorf("PacingInterval = %s, want 250ms", cfg.PacingInterval())
	}
	if !cfg.SMTPImplicitTLS {
		t.Error("SMTPImplicitTLS = false, want true")
	}
	if cfg.SendRateLimit != 14 {
		t.Errorf("SendRateLimit = %d, want 14", cfg.SendRateLimit)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")
	t.Setenv("MAIL_FROM_ADDRESS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_InvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown transport", env: map[string]string{"MAIL_TRANSPORT": "pigeon"}},
		{name: "smtp without host", env: map[string]string{"SMTP_HOST": ""}},
		{name: "zero max attempts", env: map[string]string{"MAX_ATTEMPTS": "0"}},
		{name: "negative pacing", env: map[string]string{"PACING_INTERVAL_MS": "-1"}},
		{name: "rate limit without redis", env: map[string]string{"SEND_RATE_LIMIT": "10", "REDIS_URL": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			if _, err := Load(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}
