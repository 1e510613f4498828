package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Ledger       LedgerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"LEDGER_DB_DSN"`

	LegacyHost     string `envconfig:"LEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGER_DB_USER"`
	LegacyPassword string `envconfig:"LEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGER_REDIS_URL"`
	Address      string        `envconfig:"LEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`

	// KeyPrefix separates ledgers that share one Redis instance.
	KeyPrefix string `envconfig:"LEDGER_REDIS_KEY_PREFIX" default:"ledger"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	PaymentIdempotencyTTL time.Duration `envconfig:"LEDGER_EVENTING_PAYMENT_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LEDGER_GCP_PROJECT_ID"`
}

// PubSubConfig names the topics ledger events are relayed to. Integrity alerts
// go to AlertTopic when it is set and to LedgerTopic otherwise.
type PubSubConfig struct {
	LedgerTopic string `envconfig:"LEDGER_PUBSUB_LEDGER_TOPIC" default:"ledger-events"`
	AlertTopic  string `envconfig:"LEDGER_PUBSUB_ALERT_TOPIC"`
}

// Topics lists the distinct configured topic IDs.
func (p PubSubConfig) Topics() []string {
	topics := []string{}
	for _, topic := range []string{p.LedgerTopic, p.AlertTopic} {
		topic = strings.TrimSpace(topic)
		if topic != "" && !slices.Contains(topics, topic) {
			topics = append(topics, topic)
		}
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"LEDGER_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LEDGER_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"LEDGER_CRON_LOCK_TTL" default:"2h"`

	// JobTimeout caps a single job; it should stay below LockTTL.
	JobTimeout time.Duration `envconfig:"LEDGER_CRON_JOB_TIMEOUT" default:"30m"`
}

// LedgerConfig holds bookkeeping defaults. Monetary values are parsed as
// decimals so that no float ever reaches a persisted amount.
type LedgerConfig struct {
	DefaultTaxRate      string `envconfig:"LEDGER_DEFAULT_TAX_RATE" default:"19.00"`
	AgriculturalTaxRate string `envconfig:"LEDGER_AGRICULTURAL_TAX_RATE" default:"7.80"`
	PaymentTermDays     int    `envconfig:"LEDGER_PAYMENT_TERM_DAYS" default:"14"`
	FirstReminderFee    string `envconfig:"LEDGER_FIRST_REMINDER_FEE" default:"5.00"`
	ReminderFee         string `envconfig:"LEDGER_REMINDER_FEE" default:"10.00"`
	ReminderIntervalDay int    `envconfig:"LEDGER_REMINDER_INTERVAL_DAYS" default:"14"`
	Timezone            string `envconfig:"LEDGER_TIMEZONE" default:"Europe/Berlin"`
}

func (l LedgerConfig) validate() error {
	for env, raw := range map[string]string{
		EnvDefaultTaxRate:      l.DefaultTaxRate,
		EnvAgriculturalTaxRate: l.AgriculturalTaxRate,
		EnvFirstReminderFee:    l.FirstReminderFee,
		EnvReminderFee:         l.ReminderFee,
	} {
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("%s must be a decimal: %w", env, err)
		}
	}
	if _, err := time.LoadLocation(l.Timezone); err != nil {
		return fmt.Errorf("%s: %w", EnvTimezone, err)
	}
	return nil
}

// DefaultTax returns the configured standard VAT rate.
func (l LedgerConfig) DefaultTax() decimal.Decimal {
	return decimal.RequireFromString(l.DefaultTaxRate)
}

// AgriculturalTax returns the flat rate used for agricultural primary production.
func (l LedgerConfig) AgriculturalTax() decimal.Decimal {
	return decimal.RequireFromString(l.AgriculturalTaxRate)
}

// ReminderFeeFor returns the dunning fee for the given reminder level.
func (l LedgerConfig) ReminderFeeFor(level int) decimal.Decimal {
	if level <= 1 {
		return decimal.RequireFromString(l.FirstReminderFee)
	}
	return decimal.RequireFromString(l.ReminderFee)
}

// Location returns the business timezone used for document dates.
func (l LedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
