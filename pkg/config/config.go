package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	Sendgrid SendgridConfig
	Delivery DeliveryConfig
	Webhook  WebhookConfig
	Bag      BagConfig
	Features FeaturesConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DESIGNDOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"DESIGNDOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DESIGNDOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DESIGNDOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DESIGNDOCK_DB_DSN"`
	Driver string `envconfig:"DESIGNDOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DESIGNDOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"DESIGNDOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DESIGNDOCK_DB_USER"`
	LegacyPassword string `envconfig:"DESIGNDOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"DESIGNDOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"DESIGNDOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DESIGNDOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DESIGNDOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DESIGNDOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DESIGNDOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DESIGNDOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DESIGNDOCK_REDIS_ADDR"`
	Password     string        `envconfig:"DESIGNDOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"DESIGNDOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DESIGNDOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DESIGNDOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DESIGNDOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DESIGNDOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DESIGNDOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"DESIGNDOCK_STRIPE_API_KEY"`
	Secret   string `envconfig:"DESIGNDOCK_STRIPE_WEBHOOK_SECRET"`
	Env      string `envconfig:"DESIGNDOCK_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"DESIGNDOCK_STRIPE_CURRENCY" default:"gbp"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"DESIGNDOCK_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"DESIGNDOCK_SENDGRID_FROM_EMAIL" default:"designdock@example.com"`
}

// DeliveryConfig carries the storefront delivery surcharge policy. Digital-only
// bags never attract a surcharge regardless of these knobs.
type DeliveryConfig struct {
	FreeDeliveryThreshold decimal.Decimal `envconfig:"DESIGNDOCK_FREE_DELIVERY_THRESHOLD" default:"50"`
	StandardPercentage    decimal.Decimal `envconfig:"DESIGNDOCK_STANDARD_DELIVERY_PERCENTAGE" default:"10"`
}

// Charge returns the delivery surcharge for the given subtotal.
func (d DeliveryConfig) Charge(subtotal decimal.Decimal, digitalOnly bool) decimal.Decimal {
	if digitalOnly {
		return decimal.Zero
	}
	if subtotal.GreaterThanOrEqual(d.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return subtotal.Mul(d.StandardPercentage).Div(decimal.NewFromInt(100)).Round(2)
}

// FreeDeliveryDelta returns how much more spend reaches free delivery.
func (d DeliveryConfig) FreeDeliveryDelta(subtotal decimal.Decimal, digitalOnly bool) decimal.Decimal {
	if digitalOnly || subtotal.GreaterThanOrEqual(d.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return d.FreeDeliveryThreshold.Sub(subtotal)
}

// WebhookConfig tunes the reconciliation lookup performed by the Stripe
// webhook handler before it creates an order itself. The bounded poll is a
// latency optimization only; the unique constraint on orders.stripe_pid is
// what makes the two writers safe.
type WebhookConfig struct {
	OrderLookupAttempts int           `envconfig:"DESIGNDOCK_WEBHOOK_ORDER_LOOKUP_ATTEMPTS" default:"3"`
	OrderLookupInterval time.Duration `envconfig:"DESIGNDOCK_WEBHOOK_ORDER_LOOKUP_INTERVAL" default:"200ms"`
	IdempotencyTTL      time.Duration `envconfig:"DESIGNDOCK_WEBHOOK_IDEMPOTENCY_TTL" default:"24h"`
}

type BagConfig struct {
	SessionTTL time.Duration `envconfig:"DESIGNDOCK_BAG_SESSION_TTL" default:"168h"`
}

type FeaturesConfig struct {
	AutoMigrate bool `envconfig:"DESIGNDOCK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
