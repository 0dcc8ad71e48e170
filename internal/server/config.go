package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/garrettladley/paygate/internal/bus"
	appenv "github.com/garrettladley/paygate/internal/env"
	"github.com/garrettladley/paygate/internal/service/webhook"
	"github.com/garrettladley/paygate/internal/storage"
	"github.com/garrettladley/paygate/internal/xhttp"
)

type Config struct {
	Port      string             `env:"PORT" envDefault:"8080"`
	Env       appenv.Environment `env:"ENV" envDefault:"development"`
	// TrustedProxies may set X-Forwarded-For; addresses or CIDR ranges.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	Stripe    Stripe             `envPrefix:"STRIPE_"`
	Webhook   Webhook            `envPrefix:"WEBHOOK_"`
	Dedup     Dedup              `envPrefix:"DEDUP_"`
	Bus       Bus                `envPrefix:"BUS_"`
	RateLimit RateLimit          `envPrefix:"RATE_"`
	Redis     Redis              `envPrefix:"REDIS_"`
	Kafka     Kafka              `envPrefix:"KAFKA_"`
	SNS       SNS                `envPrefix:"SNS_"`
	Database  Database           `envPrefix:"DATABASE_"`
	DynamoDB  DynamoDB           `envPrefix:"DYNAMODB_"`
}

type Stripe struct {
	SecretKey     string        `env:"SECRET_KEY,required"`
	WebhookSecret string        `env:"WEBHOOK_SECRET,required"`
	SuccessURL    string        `env:"SUCCESS_URL,required"`
	CancelURL     string        `env:"CANCEL_URL,required"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
	// APIURL overrides the API host, e.g. a local stripe-mock.
	APIURL string `env:"API_URL"`
}

type Webhook struct {
	Events       []string      `env:"EVENTS" envDefault:"charge.succeeded" envSeparator:","`
	DedupTTL     time.Duration `env:"DEDUP_TTL" envDefault:"72h"`
	ClaimLease   time.Duration `env:"CLAIM_LEASE" envDefault:"1m"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" envDefault:"65536"`
}

type Dedup struct {
	Driver string `env:"DRIVER" envDefault:"memory"`
}

type Bus struct {
	Driver        string        `env:"DRIVER" envDefault:"memory"`
	Prefix        string        `env:"PREFIX"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"RETRY_BACKOFF" envDefault:"100ms"`
	// ConsumeRequests answers create.payment.session requests on the redis and kafka buses.
	ConsumeRequests bool `env:"CONSUME_REQUESTS" envDefault:"true"`
}

type RateLimit struct {
	Driver string  `env:"DRIVER" envDefault:"memory"`
	Limit  float64 `env:"LIMIT" envDefault:"10"`
	Burst  int     `env:"BURST" envDefault:"20"`
}

type Redis struct {
	URL string `env:"URL"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	GroupID string   `env:"GROUP_ID" envDefault:"paygate"`
}

type SNS struct {
	TopicARN string `env:"TOPIC_ARN"`
	// Endpoint overrides the SNS URL, e.g. LocalStack.
	Endpoint string `env:"ENDPOINT"`
}

type Database struct {
	URL string `env:"URL"`
}

type DynamoDB struct {
	Table string `env:"TABLE" envDefault:"webhook_events"`
	// Endpoint overrides the DynamoDB URL, e.g. LocalStack.
	Endpoint string `env:"ENDPOINT"`
}

func ReadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ReadConfigFrom parses environ instead of the process environment.
func ReadConfigFrom(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every setting that would stop the server from starting.
func (c Config) Validate() error {
	var errs []error

	if _, err := webhook.ParseEventTypes(c.Webhook.Events); err != nil {
		errs = append(errs, fmt.Errorf("WEBHOOK_EVENTS: %w", err))
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("WEBHOOK_MAX_BODY_BYTES must be positive"))
	}
	if c.Stripe.Timeout <= 0 {
		errs = append(errs, errors.New("STRIPE_TIMEOUT must be positive"))
	}
	if c.Webhook.ClaimLease <= 0 {
		errs = append(errs, errors.New("WEBHOOK_CLAIM_LEASE must be positive"))
	}
	if c.Webhook.ClaimLease > c.Webhook.DedupTTL {
		errs = append(errs, errors.New("WEBHOOK_CLAIM_LEASE must not exceed WEBHOOK_DEDUP_TTL"))
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT must be positive"))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("RATE_BURST must be at least 1"))
	}
	if _, err := xhttp.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	needsRedis := false

	busDriver, err := bus.ParseDriver(c.Bus.Driver)
	if err != nil {
		errs = append(errs, fmt.Errorf("BUS_DRIVER: %w", err))
	}
	switch busDriver {
	case bus.DriverRedis:
		needsRedis = true
	case bus.DriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka bus"))
		}
	case bus.DriverSNS:
		if c.SNS.TopicARN == "" {
			errs = append(errs, errors.New("SNS_TOPIC_ARN is required for the sns bus"))
		}
	case bus.DriverMemory:
		if c.Env.IsProduction() {
			errs = append(errs, errors.New("BUS_DRIVER=memory cannot deliver events to other services in production"))
		}
	}

	switch c.Dedup.Driver {
	case storage.DriverMemory:
	case storage.DriverRedis:
		needsRedis = true
	case storage.DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres dedup store"))
		}
	case storage.DriverDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for the dynamodb dedup store"))
		}
	default:
		errs = append(errs, fmt.Errorf("DEDUP_DRIVER: unknown driver %q", c.Dedup.Driver))
	}

	switch c.RateLimit.Driver {
	case storage.DriverMemory:
	case storage.DriverRedis:
		needsRedis = true
	default:
		errs = append(errs, fmt.Errorf("RATE_DRIVER: unknown driver %q", c.RateLimit.Driver))
	}

	if needsRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when a redis driver is selected"))
	}

	return errors.Join(errs...)
}

// Proxies is TrustedProxies parsed; Validate has already rejected bad entries.
func (c Config) Proxies() xhttp.TrustedProxies {
	proxies, _ := xhttp.ParseTrustedProxies(c.TrustedProxies)
	return proxies
}

func (c Config) EventTypes() webhook.EventTypes {
	types, err := webhook.ParseEventTypes(c.Webhook.Events)
	if err != nil {
		return webhook.DefaultEventTypes()
	}
	return types
}
