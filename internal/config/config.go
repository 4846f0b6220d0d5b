package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Log      LogConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Store    StoreConfig
	Queues   QueueConfig
	Backlog  BacklogConfig
	Events   EventsConfig
	Metrics  MetricsConfig
	AWS      AWSConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env      string
	Port     string
	RunLocal bool // serve with a local HTTP server instead of the Lambda adapter
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// StripeConfig holds the payment processor credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	IsTestMode    bool
}

// CheckoutConfig controls checkout session issuance.
type CheckoutConfig struct {
	MinAmount int64  // minor currency units
	Currency  string // ISO code, lower case
	BaseURL   string // front-end origin for success/cancel redirects
}

// StoreConfig selects the document store and its table names.
type StoreConfig struct {
	Driver         string // dynamodb, memory
	GiftsTable     string
	SlugIndexTable string
	ChildrenTable  string
	GiftPagesTable string
	EventsTable    string
}

// QueueConfig holds SQS queue URLs. Empty disables the corresponding path.
type QueueConfig struct {
	RetryURL      string
	DeadLetterURL string
}

// BacklogConfig bounds deferred payment confirmations.
type BacklogConfig struct {
	RetryDelay  time.Duration
	MaxAttempts int
}

// EventsConfig controls the processed-event log.
type EventsConfig struct {
	TTL time.Duration
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	CloudWatchEnabled bool
	Namespace         string
}

// AWSConfig overrides the SDK defaults.
type AWSConfig struct {
	Region   string
	Endpoint string
}

const (
	DriverDynamoDB = "dynamodb"
	DriverMemory   = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.run_local", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("stripe.is_test_mode", true)

	v.SetDefault("checkout.min_amount", 200)
	v.SetDefault("checkout.currency", "cad")
	v.SetDefault("checkout.base_url", "http://localhost:3000")

	v.SetDefault("store.driver", DriverDynamoDB)
	v.SetDefault("store.gifts_table", "gifts")
	v.SetDefault("store.slug_index_table", "slugIndex")
	v.SetDefault("store.children_table", "children")
	v.SetDefault("store.gift_pages_table", "giftPages")
	v.SetDefault("store.events_table", "stripe_events")

	v.SetDefault("backlog.retry_delay", "60s")
	v.SetDefault("backlog.max_attempts", 5)

	v.SetDefault("events.ttl", "72h")

	v.SetDefault("metrics.cloudwatch_enabled", false)
	v.SetDefault("metrics.namespace", "GiftFlow")
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with GIFTFLOW_ prefix (e.g., GIFTFLOW_STRIPE_SECRET_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/var/task")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("GIFTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("app.env"),
			Port:     v.GetString("app.port"),
			RunLocal: v.GetBool("app.run_local"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			IsTestMode:    v.GetBool("stripe.is_test_mode"),
		},
		Checkout: CheckoutConfig{
			MinAmount: v.GetInt64("checkout.min_amount"),
			Currency:  strings.ToLower(v.GetString("checkout.currency")),
			BaseURL:   strings.TrimRight(v.GetString("checkout.base_url"), "/"),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(v.GetString("store.driver")),
			GiftsTable:     v.GetString("store.gifts_table"),
			SlugIndexTable: v.GetString("store.slug_index_table"),
			ChildrenTable:  v.GetString("store.children_table"),
			GiftPagesTable: v.GetString("store.gift_pages_table"),
			EventsTable:    v.GetString("store.events_table"),
		},
		Queues: QueueConfig{
			RetryURL:      v.GetString("queues.retry_url"),
			DeadLetterURL: v.GetString("queues.dead_letter_url"),
		},
		Backlog: BacklogConfig{
			RetryDelay:  v.GetDuration("backlog.retry_delay"),
			MaxAttempts: v.GetInt("backlog.max_attempts"),
		},
		Events: EventsConfig{
			TTL: v.GetDuration("events.ttl"),
		},
		Metrics: MetricsConfig{
			CloudWatchEnabled: v.GetBool("metrics.cloudwatch_enabled"),
			Namespace:         v.GetString("metrics.namespace"),
		},
		AWS: AWSConfig{
			Region:   v.GetString("aws.region"),
			Endpoint: v.GetString("aws.endpoint"),
		},
	}

	return cfg, nil
}

// Validate checks the settings every deployment needs. Stripe credentials are
// checked by the processor adapter itself.
func (c *Config) Validate() error {
	if c.Checkout.MinAmount <= 0 {
		return fmt.Errorf("config: checkout.min_amount must be positive, got %d", c.Checkout.MinAmount)
	}
	if c.Checkout.Currency == "" {
		return fmt.Errorf("config: checkout.currency is required")
	}
	if c.Checkout.BaseURL == "" {
		return fmt.Errorf("config: checkout.base_url is required")
	}
	switch c.Store.Driver {
	case DriverDynamoDB, DriverMemory:
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Backlog.MaxAttempts < 1 {
		return fmt.Errorf("config: backlog.max_attempts must be at least 1")
	}
	return nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
