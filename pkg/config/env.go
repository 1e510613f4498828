package config

// EnvPrefix is handed to envconfig; every field carries its full name in the tag.
const EnvPrefix = "LEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LEDGER_APP_ENV"
	EnvPort     = "LEDGER_APP_PORT"
	EnvLogLevel = "LEDGER_LOG_LEVEL"

	EnvDBDSN  = "LEDGER_DB_DSN"
	EnvDBHost = "LEDGER_DB_HOST"
	EnvDBPort = "LEDGER_DB_PORT"
	EnvDBUser = "LEDGER_DB_USER"
	EnvDBPass = "LEDGER_DB_PASSWORD"
	EnvDBName = "LEDGER_DB_NAME"

	EnvRedisURL = "LEDGER_REDIS_URL"

	EnvJWTSecret  = "LEDGER_JWT_SECRET"
	EnvJWTIssuer  = "LEDGER_JWT_ISSUER"
	EnvJWTExpMins = "LEDGER_JWT_EXPIRATION_MINUTES"

	EnvAutoMigrate = "LEDGER_AUTO_MIGRATE"

	EnvGCPProjectID      = "LEDGER_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic = "LEDGER_PUBSUB_LEDGER_TOPIC"
	EnvPubSubAlertTopic  = "LEDGER_PUBSUB_ALERT_TOPIC"

	EnvDefaultTaxRate      = "LEDGER_DEFAULT_TAX_RATE"
	EnvAgriculturalTaxRate = "LEDGER_AGRICULTURAL_TAX_RATE"
	EnvFirstReminderFee    = "LEDGER_FIRST_REMINDER_FEE"
	EnvReminderFee         = "LEDGER_REMINDER_FEE"
	EnvTimezone            = "LEDGER_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
