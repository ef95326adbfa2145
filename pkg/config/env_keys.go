package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "DRIPWIRE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "DRIPWIRE_DB_DSN"
	EnvDBHost = "DRIPWIRE_DB_HOST"
	EnvDBUser = "DRIPWIRE_DB_USER"
	EnvDBName = "DRIPWIRE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
