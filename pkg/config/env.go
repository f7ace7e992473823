package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "REPAIRHUB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:repairhub.db?_busy_timeout=5000&_foreign_keys=on"
)

const (
	EnvAppEnv    = "REPAIRHUB_APP_ENV"
	EnvPort      = "REPAIRHUB_APP_PORT"
	EnvDBDSN     = "REPAIRHUB_DB_DSN"
	EnvDBHost    = "REPAIRHUB_DB_HOST"
	EnvDBUser    = "REPAIRHUB_DB_USER"
	EnvDBName    = "REPAIRHUB_DB_NAME"
	EnvRedisURL  = "REPAIRHUB_REDIS_URL"
	EnvRedisAddr = "REPAIRHUB_REDIS_ADDR"
	EnvJWTSecret = "REPAIRHUB_JWT_SECRET"
	EnvJWTIssuer = "REPAIRHUB_JWT_ISSUER"
	EnvJWTExp    = "REPAIRHUB_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite = "REPAIRHUB_USE_SQLITE"
	EnvKafka     = "REPAIRHUB_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
