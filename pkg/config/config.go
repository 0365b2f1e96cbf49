package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "BOOSTPANEL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Intake       IntakeConfig
	Reconcile    ReconcileConfig
	CatalogSync  CatalogSyncConfig
	Provider     ProviderConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"BOOSTPANEL_APP_ENV" required:"true"`
	Port         string `envconfig:"BOOSTPANEL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BOOSTPANEL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOOSTPANEL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BOOSTPANEL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BOOSTPANEL_DB_DSN"`
	Driver string `envconfig:"BOOSTPANEL_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BOOSTPANEL_DB_HOST"`
	Port     int    `envconfig:"BOOSTPANEL_DB_PORT" default:"5432"`
	User     string `envconfig:"BOOSTPANEL_DB_USER"`
	Password string `envconfig:"BOOSTPANEL_DB_PASSWORD"`
	Name     string `envconfig:"BOOSTPANEL_DB_NAME"`
	SSLMode  string `envconfig:"BOOSTPANEL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOOSTPANEL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOOSTPANEL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOOSTPANEL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOOSTPANEL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BOOSTPANEL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BOOSTPANEL_REDIS_ADDR"`
	Password     string        `envconfig:"BOOSTPANEL_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOOSTPANEL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOOSTPANEL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOOSTPANEL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOOSTPANEL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOOSTPANEL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOOSTPANEL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BOOSTPANEL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BOOSTPANEL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BOOSTPANEL_JWT_EXPIRATION_MINUTES" default:"60"`
}

// IntakeConfig bounds order creation.
type IntakeConfig struct {
	RateLimitWindow      time.Duration `envconfig:"BOOSTPANEL_INTAKE_RATE_LIMIT_WINDOW" default:"1h"`
	RateLimitMax         int           `envconfig:"BOOSTPANEL_INTAKE_RATE_LIMIT_MAX" default:"50"`
	DuplicateLinkWindow  time.Duration `envconfig:"BOOSTPANEL_INTAKE_DUPLICATE_LINK_WINDOW" default:"72h"`
	MaxLinkLength        int           `envconfig:"BOOSTPANEL_INTAKE_MAX_LINK_LENGTH" default:"500"`
	DefaultPageSize      int           `envconfig:"BOOSTPANEL_INTAKE_DEFAULT_PAGE_SIZE" default:"25"`
	MaxPageSize          int           `envconfig:"BOOSTPANEL_INTAKE_MAX_PAGE_SIZE" default:"100"`
	SubmitTimeoutSeconds int           `envconfig:"BOOSTPANEL_INTAKE_SUBMIT_TIMEOUT_SECONDS" default:"30"`
}

// ReconcileConfig paces the order status polling job. LockTTL bounds how
// long a dead worker can hold the cron lock; it must comfortably exceed one
// cycle (interval plus the pass budget) but stay small, since the lock
// gates the only refund path.
type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"BOOSTPANEL_RECONCILE_INTERVAL" default:"5m"`
	Passes    int           `envconfig:"BOOSTPANEL_RECONCILE_PASSES" default:"4"`
	PassDelay time.Duration `envconfig:"BOOSTPANEL_RECONCILE_PASS_DELAY" default:"30s"`
	BatchSize int           `envconfig:"BOOSTPANEL_RECONCILE_BATCH_SIZE" default:"500"`
	LockTTL   time.Duration `envconfig:"BOOSTPANEL_CRON_LOCK_TTL" default:"15m"`
}

// CatalogSyncConfig controls the provider catalog refresh job.
type CatalogSyncConfig struct {
	RateEpsilon string        `envconfig:"BOOSTPANEL_CATALOG_SYNC_RATE_EPSILON" default:"0.00001"`
	Interval    time.Duration `envconfig:"BOOSTPANEL_CATALOG_SYNC_INTERVAL" default:"1h"`
}

// ProviderConfig bounds outbound calls to fulfillment provider APIs.
type ProviderConfig struct {
	HTTPTimeout time.Duration `envconfig:"BOOSTPANEL_PROVIDER_HTTP_TIMEOUT" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BOOSTPANEL_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for env, val := range map[string]string{
		"BOOSTPANEL_DB_HOST": db.Host,
		"BOOSTPANEL_DB_USER": db.User,
		"BOOSTPANEL_DB_NAME": db.Name,
	} {
		if val == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either BOOSTPANEL_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
