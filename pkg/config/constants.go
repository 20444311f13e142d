package config

const (
	EnvPrefix = "KDS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "KDS_APP_ENV"
	EnvPort     = "KDS_APP_PORT"
	EnvLogLevel = "KDS_LOG_LEVEL"

	EnvDBDSN    = "KDS_DB_DSN"
	EnvDBDriver = "KDS_DB_DRIVER"
	EnvDBHost   = "KDS_DB_HOST"
	EnvDBUser   = "KDS_DB_USER"
	EnvDBName   = "KDS_DB_NAME"

	EnvRedisURL = "KDS_REDIS_URL"

	EnvJWTSecret  = "KDS_JWT_SECRET"
	EnvJWTIssuer  = "KDS_JWT_ISSUER"
	EnvJWTExpMins = "KDS_JWT_EXPIRATION_MINUTES"

	EnvPayTRMerchantID   = "KDS_PAYTR_MERCHANT_ID"
	EnvPayTRMerchantKey  = "KDS_PAYTR_MERCHANT_KEY"
	EnvPayTRMerchantSalt = "KDS_PAYTR_MERCHANT_SALT"

	EnvReportsTaxRate        = "KDS_REPORTS_TAX_RATE"
	EnvSchedulerTickInterval = "KDS_SCHEDULER_TICK_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
