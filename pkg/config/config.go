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
	Numbering    NumberingConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REPAIRHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"REPAIRHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"REPAIRHUB_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"REPAIRHUB_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"REPAIRHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"REPAIRHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"REPAIRHUB_DB_DSN"`
	Driver string `envconfig:"REPAIRHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REPAIRHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"REPAIRHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REPAIRHUB_DB_USER"`
	LegacyPassword string `envconfig:"REPAIRHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"REPAIRHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"REPAIRHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REPAIRHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REPAIRHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REPAIRHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REPAIRHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"REPAIRHUB_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"REPAIRHUB_REDIS_URL"`
	Address      string        `envconfig:"REPAIRHUB_REDIS_ADDR"`
	Password     string        `envconfig:"REPAIRHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"REPAIRHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REPAIRHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REPAIRHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REPAIRHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REPAIRHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REPAIRHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"REPAIRHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"REPAIRHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"REPAIRHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"REPAIRHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"REPAIRHUB_AUTO_MIGRATE" default:"false"`
}

// NumberingConfig controls the human-readable order and batch numbers.
type NumberingConfig struct {
	OrderPrefix string `envconfig:"REPAIRHUB_ORDER_NO_PREFIX" default:"RO"`
	BatchPrefix string `envconfig:"REPAIRHUB_BATCH_NO_PREFIX" default:"BATCH"`
	Padding     int    `envconfig:"REPAIRHUB_NUMBER_PADDING" default:"6"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"REPAIRHUB_KAFKA_BROKERS"`
	RepairTopic  string        `envconfig:"REPAIRHUB_KAFKA_REPAIR_TOPIC" default:"repairhub.repair-orders"`
	BatchTopic   string        `envconfig:"REPAIRHUB_KAFKA_BATCH_TOPIC" default:"repairhub.transport-batches"`
	ClientID     string        `envconfig:"REPAIRHUB_KAFKA_CLIENT_ID" default:"repairhub"`
	WriteTimeout time.Duration `envconfig:"REPAIRHUB_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"REPAIRHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"REPAIRHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"REPAIRHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type MaintenanceConfig struct {
	Interval             time.Duration `envconfig:"REPAIRHUB_MAINTENANCE_INTERVAL" default:"1h"`
	OutboxRetentionDays  int           `envconfig:"REPAIRHUB_OUTBOX_RETENTION_DAYS" default:"30"`
	TransitOverdueAfter  time.Duration `envconfig:"REPAIRHUB_TRANSIT_OVERDUE_AFTER" default:"48h"`
	TransitWatchPageSize int           `envconfig:"REPAIRHUB_TRANSIT_WATCH_PAGE_SIZE" default:"200"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"REPAIRHUB_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
