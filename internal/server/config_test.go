package server

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	appenv "github.com/garrettladley/paygate/internal/env"
)

func baseEnviron() map[string]string {
	return map[string]string{
		"STRIPE_SECRET_KEY":     "sk_test_123",
		"STRIPE_WEBHOOK_SECRET": "whsec_123",
		"STRIPE_SUCCESS_URL":    "https://shop.example/payments/success",
		"STRIPE_CANCEL_URL":     "https://shop.example/payments/cancel",
	}
}

func TestReadConfigDefaults(t *testing.T) {
	t.Parallel()

	got, err := ReadConfigFrom(baseEnviron())
	if err != nil {
		t.Fatalf("ReadConfigFrom() error = %v", err)
	}

	want := Config{
		Port: "8080",
		Env:  appenv.Development,
		Stripe: Stripe{
			SecretKey:     "sk_test_123",
			WebhookSecret: "whsec_123",
			SuccessURL:    "https://shop.example/payments/success",
			CancelURL:     "https://shop.example/payments/cancel",
			Timeout:       10 * time.Second,
		},
		Webhook: Webhook{
			Events:       []string{"charge.succeeded"},
			DedupTTL:     72 * time.Hour,
			ClaimLease:   time.Minute,
			MaxBodyBytes: 65536,
		},
		Dedup:     Dedup{Driver: "memory"},
		Bus:       Bus{Driver: "memory", RetryAttempts: 3, RetryBackoff: 100 * time.Millisecond, ConsumeRequests: true},
		RateLimit: RateLimit{Driver: "memory", Limit: 10, Burst: 20},
		Kafka:     Kafka{GroupID: "paygate"},
		DynamoDB:  DynamoDB{Table: "webhook_events"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadConfigFrom() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadConfigErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		set     map[string]string
		unset   []string
		wantErr string
	}{
		{
			name:    "missing secret key",
			unset:   []string{"STRIPE_SECRET_KEY"},
			wantErr: "STRIPE_SECRET_KEY",
		},
		{
			name:    "zero rate limit",
			set:     map[string]string{"RATE_LIMIT": "0"},
			wantErr: "RATE_LIMIT",
		},
		{
			name:    "zero burst",
			set:     map[string]string{"RATE_BURST": "0"},
			wantErr: "RATE_BURST",
		},
		{
			name:    "lease longer than dedup ttl",
			set:     map[string]string{"WEBHOOK_CLAIM_LEASE": "96h"},
			wantErr: "WEBHOOK_CLAIM_LEASE",
		},
		{
			name:    "bad trusted proxy",
			set:     map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8,lb.internal"},
			wantErr: "TRUSTED_PROXIES",
		},
		{
			name:    "unsupported event type",
			set:     map[string]string{"WEBHOOK_EVENTS": "charge.succeeded,charge.refunded"},
			wantErr: "WEBHOOK_EVENTS",
		},
		{
			name:    "unknown bus driver",
			set:     map[string]string{"BUS_DRIVER": "nats"},
			wantErr: "BUS_DRIVER",
		},
		{
			name:    "kafka without brokers",
			set:     map[string]string{"BUS_DRIVER": "kafka"},
			wantErr: "KAFKA_BROKERS",
		},
		{
			name:    "sns without topic",
			set:     map[string]string{"BUS_DRIVER": "sns"},
			wantErr: "SNS_TOPIC_ARN",
		},
		{
			name:    "redis dedup without url",
			set:     map[string]string{"DEDUP_DRIVER": "redis"},
			wantErr: "REDIS_URL",
		},
		{
			name:    "postgres dedup without url",
			set:     map[string]string{"DEDUP_DRIVER": "postgres"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "unknown environment",
			set:     map[string]string{"ENV": "prod"},
			wantErr: "unknown environment",
		},
		{
			name:    "unknown dedup driver",
			set:     map[string]string{"DEDUP_DRIVER": "mongo"},
			wantErr: "DEDUP_DRIVER",
		},
		{
			name:    "unknown rate driver",
			set:     map[string]string{"RATE_DRIVER": "postgres"},
			wantErr: "RATE_DRIVER",
		},
		{
			name:    "memory bus in production",
			set:     map[string]string{"ENV": "production"},
			wantErr: "BUS_DRIVER=memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			environ := baseEnviron()
			for k, v := range tt.set {
				environ[k] = v
			}
			for _, k := range tt.unset {
				delete(environ, k)
			}

			_, err := ReadConfigFrom(environ)
			if err == nil {
				t.Fatal("ReadConfigFrom() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ReadConfigFrom() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestReadConfigDrivers(t *testing.T) {
	t.Parallel()

	environ := baseEnviron()
	environ["ENV"] = "production"
	environ["BUS_DRIVER"] = "kafka"
	environ["KAFKA_BROKERS"] = "kafka-1:9092,kafka-2:9092"
	environ["DEDUP_DRIVER"] = "redis"
	environ["RATE_DRIVER"] = "redis"
	environ["REDIS_URL"] = "redis://localhost:6379/0"
	environ["WEBHOOK_EVENTS"] = "charge.succeeded,charge.failed"

	got, err := ReadConfigFrom(environ)
	if err != nil {
		t.Fatalf("ReadConfigFrom() error = %v", err)
	}
	if diff := cmp.Diff([]string{"kafka-1:9092", "kafka-2:9092"}, got.Kafka.Brokers); diff != "" {
		t.Errorf("brokers mismatch (-want +got):\n%s", diff)
	}
	if n := len(got.EventTypes()); n != 2 {
		t.Errorf("EventTypes() has %d entries, want 2", n)
	}
}

func TestReadConfigFractionalRate(t *testing.T) {
	t.Parallel()

	environ := baseEnviron()
	environ["RATE_LIMIT"] = "0.5"
	environ["RATE_BURST"] = "1"
	environ["TRUSTED_PROXIES"] = "10.0.0.0/8, 192.0.2.1"

	cfg, err := ReadConfigFrom(environ)
	if err != nil {
		t.Fatalf("ReadConfigFrom() error = %v", err)
	}
	if cfg.RateLimit.Limit != 0.5 || cfg.RateLimit.Burst != 1 {
		t.Errorf("RateLimit = %+v, want limit 0.5 burst 1", cfg.RateLimit)
	}
	if got := len(cfg.Proxies()); got != 2 {
		t.Errorf("Proxies() has %d entries, want 2", got)
	}
}
