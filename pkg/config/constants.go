package config

// EnvPrefix is passed to envconfig; the struct tags already carry the full
// variable names, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags (tests, error
// messages).
const (
	EnvAppEnv   = "DESIGNDOCK_APP_ENV"
	EnvPort     = "DESIGNDOCK_APP_PORT"
	EnvDBDSN    = "DESIGNDOCK_DB_DSN"
	EnvDBHost   = "DESIGNDOCK_DB_HOST"
	EnvDBUser   = "DESIGNDOCK_DB_USER"
	EnvDBName   = "DESIGNDOCK_DB_NAME"
	EnvRedisURL = "DESIGNDOCK_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
