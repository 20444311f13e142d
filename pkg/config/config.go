package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	PayTR        PayTRConfig
	Reports      ReportsConfig
	Sendgrid     SendgridConfig
	Scheduler    SchedulerConfig
	Billing      BillingConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.Scheduler.TickInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvSchedulerTickInterval)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KDS_APP_ENV" required:"true"`
	Port         string `envconfig:"KDS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KDS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KDS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"KDS_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KDS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KDS_DB_DSN"`
	Driver string `envconfig:"KDS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KDS_DB_HOST"`
	LegacyPort     int    `envconfig:"KDS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KDS_DB_USER"`
	LegacyPassword string `envconfig:"KDS_DB_PASSWORD"`
	LegacyName     string `envconfig:"KDS_DB_NAME"`
	LegacySSLMode  string `envconfig:"KDS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KDS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KDS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KDS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KDS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"KDS_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"KDS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KDS_REDIS_ADDR"`
	Password     string        `envconfig:"KDS_REDIS_PASSWORD"`
	DB           int           `envconfig:"KDS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KDS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KDS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KDS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KDS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KDS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KDS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KDS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KDS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KDS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"KDS_GCP_PROJECT_ID"`
	CredentialsFile string `envconfig:"KDS_GCP_CREDENTIALS_FILE"`
}

// PubSubConfig names the event topics. Endpoint overrides the API host, e.g.
// a regional endpoint.
type PubSubConfig struct {
	OrdersTopic  string `envconfig:"KDS_PUBSUB_ORDERS_TOPIC" default:"kds-order-events"`
	BillingTopic string `envconfig:"KDS_PUBSUB_BILLING_TOPIC" default:"kds-billing-events"`
	Endpoint     string `envconfig:"KDS_PUBSUB_ENDPOINT"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KDS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KDS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KDS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"KDS_OUTBOX_RETENTION_DAYS" default:"30"`
}

// PayTRConfig holds the merchant credentials used for payment links and callback verification.
type PayTRConfig struct {
	MerchantID     string        `envconfig:"KDS_PAYTR_MERCHANT_ID"`
	MerchantKey    string        `envconfig:"KDS_PAYTR_MERCHANT_KEY"`
	MerchantSalt   string        `envconfig:"KDS_PAYTR_MERCHANT_SALT"`
	BaseURL        string        `envconfig:"KDS_PAYTR_BASE_URL" default:"https://www.paytr.com"`
	TestMode       bool          `envconfig:"KDS_PAYTR_TEST_MODE" default:"true"`
	SuccessURL     string        `envconfig:"KDS_PAYTR_SUCCESS_URL"`
	FailURL        string        `envconfig:"KDS_PAYTR_FAIL_URL"`
	Timeout        time.Duration `envconfig:"KDS_PAYTR_TIMEOUT" default:"20s"`
	MaxInstallment int           `envconfig:"KDS_PAYTR_MAX_INSTALLMENT" default:"0"`
}

type ReportsConfig struct {
	TaxRate         string        `envconfig:"KDS_REPORTS_TAX_RATE" default:"0.10"`
	DefaultCurrency string        `envconfig:"KDS_REPORTS_DEFAULT_CURRENCY" default:"TRY"`
	RendererURL     string        `envconfig:"KDS_REPORTS_RENDERER_URL" default:"http://localhost:3000"`
	RenderTimeout   time.Duration `envconfig:"KDS_REPORTS_RENDER_TIMEOUT" default:"30s"`
}

type SendgridConfig struct {
	APIKey      string        `envconfig:"KDS_SENDGRID_API_KEY"`
	DefaultFrom string        `envconfig:"KDS_SENDGRID_FROM_EMAIL" default:"reports@kds.local"`
	BaseURL     string        `envconfig:"KDS_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
	Timeout     time.Duration `envconfig:"KDS_SENDGRID_TIMEOUT" default:"15s"`
}

// SchedulerConfig drives the reconciliation tick. TickInterval is also the
// closing-time eligibility window.
type SchedulerConfig struct {
	TickInterval time.Duration `envconfig:"KDS_SCHEDULER_TICK_INTERVAL" default:"15m"`
	LockTTL      time.Duration `envconfig:"KDS_SCHEDULER_LOCK_TTL" default:"10m"`
}

type BillingConfig struct {
	GracePeriod time.Duration `envconfig:"KDS_BILLING_GRACE_PERIOD" default:"72h"`
}

// RateLimitConfig caps per-client request rates on unauthenticated and operator surfaces.
type RateLimitConfig struct {
	WebhookPerMinute      int `envconfig:"KDS_RATE_LIMIT_WEBHOOK_PER_MINUTE" default:"120"`
	ReportActionPerMinute int `envconfig:"KDS_RATE_LIMIT_REPORT_ACTIONS_PER_MINUTE" default:"20"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
