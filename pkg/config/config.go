// Package config loads every service setting from PRINTLAB_* environment
// variables. Load reports all invalid settings at once.
package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Pricing      PricingConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	return multierr.Combine(
		c.App.validate(),
		c.DB.resolveDSN(),
		c.Gateway.validate(c.App.IsProd()),
		c.Pricing.validate(),
		c.Outbox.validate(),
		c.RateLimit.validate(),
		c.Cron.validate(),
	)
}

// section prefixes every problem found in one config block.
func section(name string, problems ...string) error {
	var err error
	for _, p := range problems {
		if p != "" {
			err = multierr.Append(err, fmt.Errorf("%s: %s", name, p))
		}
	}
	return err
}

func check(ok bool, problem string) string {
	if ok {
		return ""
	}
	return problem
}

type AppConfig struct {
	Env          string `envconfig:"PRINTLAB_APP_ENV" required:"true"`
	Port         string `envconfig:"PRINTLAB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PRINTLAB_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PRINTLAB_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PRINTLAB_LOG_WARN_STACK" default:"false"`
	// TimeZone sets the calendar day behind order numbers and date filters.
	TimeZone    string   `envconfig:"PRINTLAB_TIMEZONE" default:"America/Bogota"`
	CORSOrigins []string `envconfig:"PRINTLAB_CORS_ORIGINS"`
	// MetricsAddr is where the background workers serve /metrics. Empty disables it.
	MetricsAddr string `envconfig:"PRINTLAB_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// ConsoleLogs reports whether logs should be human readable instead of JSON.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(a.LogFormat, "console")
}

// Location resolves TimeZone. Load rejects unknown zones, so the UTC
// fallback only applies to hand-built configs.
func (a AppConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(a.TimeZone); err == nil && a.TimeZone != "" {
		return loc
	}
	return time.UTC
}

func (a AppConfig) validate() error {
	_, tzErr := time.LoadLocation(a.TimeZone)
	format := strings.ToLower(a.LogFormat)
	return section("app",
		check(tzErr == nil, EnvTimeZone+" is not a known time zone"),
		check(format == "" || format == "json" || format == "console", EnvLogFormat+" must be json or console"),
	)
}

// DBConfig takes a full DSN, or the discrete parts it is assembled from.
type DBConfig struct {
	DSN string `envconfig:"PRINTLAB_DB_DSN"`

	Host     string `envconfig:"PRINTLAB_DB_HOST"`
	Port     int    `envconfig:"PRINTLAB_DB_PORT" default:"5432"`
	User     string `envconfig:"PRINTLAB_DB_USER"`
	Password string `envconfig:"PRINTLAB_DB_PASSWORD"`
	Name     string `envconfig:"PRINTLAB_DB_NAME"`
	SSLMode  string `envconfig:"PRINTLAB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PRINTLAB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PRINTLAB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PRINTLAB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PRINTLAB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs slower statements as warnings. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"PRINTLAB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

func (d *DBConfig) resolveDSN() error {
	if d.DSN != "" {
		return nil
	}
	var missing []string
	for env, value := range map[string]string{EnvDBHost: d.Host, EnvDBUser: d.User, EnvDBName: d.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return section("db", fmt.Sprintf("%s or all of %s required", EnvDBDSN, strings.Join(missing, ", ")))
	}

	user := url.User(d.User)
	if d.Password != "" {
		user = url.UserPassword(d.User, d.Password)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   d.Name,
	}
	if d.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	d.DSN = dsn.String()
	return nil
}

// RedisConfig takes a URL, or an address; discrete settings fill whatever
// the URL leaves unset.
type RedisConfig struct {
	URL          string        `envconfig:"PRINTLAB_REDIS_URL"`
	Address      string        `envconfig:"PRINTLAB_REDIS_ADDR"`
	Password     string        `envconfig:"PRINTLAB_REDIS_PASSWORD"`
	DB           int           `envconfig:"PRINTLAB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PRINTLAB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRINTLAB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRINTLAB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRINTLAB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRINTLAB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PRINTLAB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PRINTLAB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PRINTLAB_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GatewayConfig struct {
	TestMode      bool          `envconfig:"PRINTLAB_GATEWAY_TEST_MODE" default:"true"`
	SandboxURL    string        `envconfig:"PRINTLAB_GATEWAY_SANDBOX_URL" default:"https://sandbox.wompi.co/v1"`
	ProductionURL string        `envconfig:"PRINTLAB_GATEWAY_PRODUCTION_URL" default:"https://production.wompi.co/v1"`
	PrivateKey    string        `envconfig:"PRINTLAB_GATEWAY_PRIVATE_KEY"`
	EventsSecret  string        `envconfig:"PRINTLAB_GATEWAY_EVENTS_SECRET"`
	Timeout       time.Duration `envconfig:"PRINTLAB_GATEWAY_TIMEOUT" default:"10s"`
	// ReplayTTL is how long a handled webhook delivery is remembered.
	ReplayTTL time.Duration `envconfig:"PRINTLAB_GATEWAY_REPLAY_TTL" default:"24h"`
}

// BaseURL picks the sandbox or production API root by TestMode.
func (g GatewayConfig) BaseURL() string {
	root := g.ProductionURL
	if g.TestMode {
		root = g.SandboxURL
	}
	return strings.TrimRight(root, "/")
}

func (g GatewayConfig) validate(prod bool) error {
	return section("gateway",
		check(g.BaseURL() != "", EnvGatewaySandboxURL+" or "+EnvGatewayProductionURL+" is required"),
		check(g.Timeout > 0, EnvGatewayTimeout+" must be positive"),
		check(!prod || g.PrivateKey != "", EnvGatewayPrivateKey+" is required in production"),
		check(!prod || g.EventsSecret != "", EnvGatewayEventsSecret+" is required in production"),
	)
}

// PricingConfig is the fallback when the settings table has no row.
type PricingConfig struct {
	ShippingCost          int64   `envconfig:"PRINTLAB_PRICING_SHIPPING_COST" default:"12000"`
	FreeShippingThreshold int64   `envconfig:"PRINTLAB_PRICING_FREE_SHIPPING_THRESHOLD" default:"150000"`
	TaxRate               float64 `envconfig:"PRINTLAB_PRICING_TAX_RATE" default:"0.19"`
	TaxIncluded           bool    `envconfig:"PRINTLAB_PRICING_TAX_INCLUDED" default:"true"`
}

func (p PricingConfig) validate() error {
	return section("pricing",
		check(p.ShippingCost >= 0, EnvPricingShippingCost+" must not be negative"),
		check(p.FreeShippingThreshold >= 0, EnvPricingFreeShipping+" must not be negative"),
		check(p.TaxRate >= 0 && p.TaxRate < 1, EnvPricingTaxRate+" must be within [0,1)"),
	)
}

type FeatureFlagsConfig struct {
	// AutoMigrate applies embedded migrations at startup in dev.
	AutoMigrate bool `envconfig:"PRINTLAB_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PRINTLAB_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PRINTLAB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PRINTLAB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"PRINTLAB_PUBSUB_ORDERS_TOPIC" default:"printlab-order-events"`
	NotificationTopic string `envconfig:"PRINTLAB_PUBSUB_NOTIFICATION_TOPIC" default:"printlab-order-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PRINTLAB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PRINTLAB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PRINTLAB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	return section("outbox",
		check(o.BatchSize > 0, EnvOutboxBatchSize+" must be positive"),
		check(o.PollIntervalMS > 0, EnvOutboxPollMS+" must be positive"),
		check(o.MaxAttempts > 0, EnvOutboxMaxAttempts+" must be positive"),
	)
}

// RateLimitConfig bounds the public payment endpoints per fixed window. A
// zero limit turns that dimension off.
type RateLimitConfig struct {
	Window           time.Duration `envconfig:"PRINTLAB_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookIPLimit   int           `envconfig:"PRINTLAB_RATE_LIMIT_WEBHOOK_IP" default:"120"`
	ConfirmIPLimit   int           `envconfig:"PRINTLAB_RATE_LIMIT_CONFIRM_IP" default:"30"`
	ConfirmUserLimit int           `envconfig:"PRINTLAB_RATE_LIMIT_CONFIRM_USER" default:"10"`
}

func (r RateLimitConfig) validate() error {
	return section("rate limit",
		check(r.Window > 0, EnvRateLimitWindow+" must be positive"),
		check(min(r.WebhookIPLimit, r.ConfirmIPLimit, r.ConfirmUserLimit) >= 0, "limits must not be negative"),
	)
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PRINTLAB_CRON_INTERVAL" default:"15m"`
	// PendingOrderTTL is how long an unpaid order may stay PENDING before it
	// is cancelled and its stock returned. Zero disables expiry.
	PendingOrderTTL     time.Duration `envconfig:"PRINTLAB_CRON_PENDING_ORDER_TTL" default:"72h"`
	OutboxRetentionDays int           `envconfig:"PRINTLAB_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (c CronConfig) validate() error {
	return section("cron",
		check(c.Interval > 0, EnvCronInterval+" must be positive"),
		check(c.PendingOrderTTL >= 0, EnvCronPendingOrderTTL+" must not be negative"),
		check(c.OutboxRetentionDays > 0, EnvCronOutboxRetention+" must be positive"),
	)
}
