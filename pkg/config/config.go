package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Engine       EngineConfig
	Mailer       MailerConfig
	Tracking     TrackingConfig
	PubSub       PubSubConfig
	GCP          GCPConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
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
	Env          string `envconfig:"DRIPWIRE_APP_ENV" required:"true"`
	Port         string `envconfig:"DRIPWIRE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DRIPWIRE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DRIPWIRE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DRIPWIRE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DRIPWIRE_DB_DSN"`
	Driver string `envconfig:"DRIPWIRE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DRIPWIRE_DB_HOST"`
	LegacyPort     int    `envconfig:"DRIPWIRE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DRIPWIRE_DB_USER"`
	LegacyPassword string `envconfig:"DRIPWIRE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DRIPWIRE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DRIPWIRE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DRIPWIRE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DRIPWIRE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DRIPWIRE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DRIPWIRE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DRIPWIRE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DRIPWIRE_REDIS_ADDR"`
	Password     string        `envconfig:"DRIPWIRE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DRIPWIRE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DRIPWIRE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DRIPWIRE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DRIPWIRE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DRIPWIRE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DRIPWIRE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EngineConfig tunes the sequence scheduler.
type EngineConfig struct {
	// BounceLimitRaw is parsed leniently: unset or non-numeric values fall
	// back to the default. See BounceLimit().
	BounceLimitRaw string        `envconfig:"DRIPWIRE_ENGINE_BOUNCE_LIMIT"`
	PollInterval   time.Duration `envconfig:"DRIPWIRE_ENGINE_POLL_INTERVAL" default:"30s"`
	BatchSize      int           `envconfig:"DRIPWIRE_ENGINE_BATCH_SIZE" default:"50"`
	ClaimTTL       time.Duration `envconfig:"DRIPWIRE_ENGINE_CLAIM_TTL" default:"5m"`
	RetryBaseDelay time.Duration `envconfig:"DRIPWIRE_ENGINE_RETRY_BASE_DELAY" default:"15m"`
	RetryMaxDelay  time.Duration `envconfig:"DRIPWIRE_ENGINE_RETRY_MAX_DELAY" default:"24h"`
	BounceWindow   time.Duration `envconfig:"DRIPWIRE_ENGINE_BOUNCE_WINDOW" default:"720h"`
	EventRetention time.Duration `envconfig:"DRIPWIRE_ENGINE_EVENT_RETENTION" default:"2160h"`
}

// DefaultBounceLimit is the number of consecutive transient failures
// tolerated before a subscriber is excluded from a sequence.
const DefaultBounceLimit = 3

// BounceLimit returns the configured limit, or the default when the variable
// is unset or not a positive number.
func (e EngineConfig) BounceLimit() int {
	raw := strings.TrimSpace(e.BounceLimitRaw)
	if raw == "" {
		return DefaultBounceLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return DefaultBounceLimit
	}
	return limit
}

type MailerConfig struct {
	SMTPHost    string        `envconfig:"DRIPWIRE_SMTP_HOST"`
	SMTPPort    int           `envconfig:"DRIPWIRE_SMTP_PORT" default:"587"`
	Username    string        `envconfig:"DRIPWIRE_SMTP_USERNAME"`
	Password    string        `envconfig:"DRIPWIRE_SMTP_PASSWORD"`
	DefaultFrom string        `envconfig:"DRIPWIRE_MAIL_FROM" default:"no-reply@dripwire.io"`
	SendTimeout time.Duration `envconfig:"DRIPWIRE_MAIL_SEND_TIMEOUT" default:"10s"`
}

type TrackingConfig struct {
	// Secret signs open/click tokens. Empty disables tracking: links are
	// not signed and callbacks degrade to the safe default response.
	Secret  string `envconfig:"DRIPWIRE_TRACKING_SECRET"`
	BaseURL string `envconfig:"DRIPWIRE_TRACKING_BASE_URL"`
	HomeURL string `envconfig:"DRIPWIRE_TRACKING_HOME_URL" default:"/"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"DRIPWIRE_PUBSUB_EVENTS_TOPIC" default:"dw-domain-events"`
	EventsSubscription string `envconfig:"DRIPWIRE_PUBSUB_EVENTS_SUBSCRIPTION"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DRIPWIRE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DRIPWIRE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DRIPWIRE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DRIPWIRE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DRIPWIRE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"DRIPWIRE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
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
