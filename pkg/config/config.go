package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	HTTP          HTTPConfig
	FeatureFlags  FeatureFlagsConfig
	Scoring       ScoringConfig
	Limits        LimitsConfig
	Fraud         FraudConfig
	Verification  VerificationConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Scoring.validate(); err != nil {
		return nil, err
	}
	policy := cfg.Scoring.normalized()
	if len(cfg.Limits.Tiers) == 0 {
		cfg.Limits.Tiers = DefaultTiers(policy)
	}
	if err := cfg.Limits.Tiers.validate(scoreCeilings[policy]); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRUSTLEND_APP_ENV" required:"true"`
	Port         string `envconfig:"TRUSTLEND_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TRUSTLEND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRUSTLEND_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRUSTLEND_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRUSTLEND_DB_DSN"`
	Driver string `envconfig:"TRUSTLEND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRUSTLEND_DB_HOST"`
	LegacyPort     int    `envconfig:"TRUSTLEND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRUSTLEND_DB_USER"`
	LegacyPassword string `envconfig:"TRUSTLEND_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRUSTLEND_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRUSTLEND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRUSTLEND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRUSTLEND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRUSTLEND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRUSTLEND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRUSTLEND_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRUSTLEND_REDIS_ADDR"`
	Password     string        `envconfig:"TRUSTLEND_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRUSTLEND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRUSTLEND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRUSTLEND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRUSTLEND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRUSTLEND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRUSTLEND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRUSTLEND_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRUSTLEND_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRUSTLEND_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TRUSTLEND_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TRUSTLEND_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TRUSTLEND_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TRUSTLEND_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TRUSTLEND_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"TRUSTLEND_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"TRUSTLEND_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"TRUSTLEND_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"TRUSTLEND_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"TRUSTLEND_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"TRUSTLEND_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type HTTPConfig struct {
	CORSOrigins []string `envconfig:"TRUSTLEND_CORS_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRUSTLEND_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRUSTLEND_AUTO_MIGRATE" default:"false"`
}

// ScoringConfig selects the score policy the whole process uses.
type ScoringConfig struct {
	Policy     string `envconfig:"TRUSTLEND_SCORE_POLICY" default:"lateness"`
	MaxRetries int    `envconfig:"TRUSTLEND_TRUST_MAX_RETRIES" default:"3"`
}

func (s ScoringConfig) normalized() string {
	return strings.ToLower(strings.TrimSpace(s.Policy))
}

func (s ScoringConfig) validate() error {
	switch s.normalized() {
	case ScorePolicyLifecycle, ScorePolicyLateness:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s", EnvScorePolicy, ScorePolicyLifecycle, ScorePolicyLateness)
}

type LimitsConfig struct {
	// Tiers defaults to DefaultTiers for the active score policy when unset.
	Tiers         TierTable `envconfig:"TRUSTLEND_LIMIT_TIERS"`
	ExemptUserIDs []string  `envconfig:"TRUSTLEND_LIMIT_EXEMPT_USER_IDS"`
	ExemptEmails  []string  `envconfig:"TRUSTLEND_LIMIT_EXEMPT_EMAILS"`
}

// FraudConfig carries the detector thresholds. A zero LowTrustScore is
// derived from the active score policy at wiring time.
type FraudConfig struct {
	Velocity24hThreshold  int     `envconfig:"TRUSTLEND_FRAUD_VELOCITY_24H" default:"3"`
	Velocity24hPoints     int     `envconfig:"TRUSTLEND_FRAUD_VELOCITY_24H_POINTS" default:"10"`
	Velocity7dThreshold   int     `envconfig:"TRUSTLEND_FRAUD_VELOCITY_7D" default:"10"`
	Velocity7dPoints      int     `envconfig:"TRUSTLEND_FRAUD_VELOCITY_7D_POINTS" default:"5"`
	NewAccountDays        int     `envconfig:"TRUSTLEND_FRAUD_NEW_ACCOUNT_DAYS" default:"7"`
	NewAccountPoints      int     `envconfig:"TRUSTLEND_FRAUD_NEW_ACCOUNT_POINTS" default:"25"`
	AverageAmountMultiple float64 `envconfig:"TRUSTLEND_FRAUD_AVG_AMOUNT_MULTIPLE" default:"3"`
	MaxAmountMultiple     float64 `envconfig:"TRUSTLEND_FRAUD_MAX_AMOUNT_MULTIPLE" default:"2"`
	AmountPoints          int     `envconfig:"TRUSTLEND_FRAUD_AMOUNT_POINTS" default:"20"`
	DisputeRatio          float64 `envconfig:"TRUSTLEND_FRAUD_DISPUTE_RATIO" default:"0.3"`
	DisputePoints         int     `envconfig:"TRUSTLEND_FRAUD_DISPUTE_POINTS" default:"25"`
	LowTrustScore         int     `envconfig:"TRUSTLEND_FRAUD_LOW_TRUST_SCORE" default:"0"`
	HighVolumeLoans       int     `envconfig:"TRUSTLEND_FRAUD_HIGH_VOLUME_LOANS" default:"10"`
	LowTrustPoints        int     `envconfig:"TRUSTLEND_FRAUD_LOW_TRUST_POINTS" default:"20"`
	CircularMaxHops       int     `envconfig:"TRUSTLEND_FRAUD_CIRCULAR_MAX_HOPS" default:"4"`
	CircularPoints        int     `envconfig:"TRUSTLEND_FRAUD_CIRCULAR_POINTS" default:"50"`
	MaxPopulation         int     `envconfig:"TRUSTLEND_FRAUD_MAX_POPULATION" default:"200"`
	AlertThreshold        int     `envconfig:"TRUSTLEND_FRAUD_ALERT_THRESHOLD" default:"20"`
	MediumThreshold       int     `envconfig:"TRUSTLEND_FRAUD_MEDIUM_THRESHOLD" default:"40"`
	HighThreshold         int     `envconfig:"TRUSTLEND_FRAUD_HIGH_THRESHOLD" default:"60"`
	CriticalThreshold     int     `envconfig:"TRUSTLEND_FRAUD_CRITICAL_THRESHOLD" default:"80"`
}

type VerificationConfig struct {
	CodeTTL     time.Duration `envconfig:"TRUSTLEND_VERIFICATION_CODE_TTL" default:"10m"`
	Digits      int           `envconfig:"TRUSTLEND_VERIFICATION_DIGITS" default:"6"`
	MaxAttempts int           `envconfig:"TRUSTLEND_VERIFICATION_MAX_ATTEMPTS" default:"5"`
}

type CronConfig struct {
	Interval      time.Duration `envconfig:"TRUSTLEND_CRON_INTERVAL" default:"24h"`
	SweepPageSize int           `envconfig:"TRUSTLEND_CRON_SWEEP_PAGE_SIZE" default:"100"`
	SweepWorkers  int           `envconfig:"TRUSTLEND_CRON_SWEEP_WORKERS" default:"4"`
	JobTimeout    time.Duration `envconfig:"TRUSTLEND_CRON_JOB_TIMEOUT" default:"2h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
		if db.DSN == "" {
			db.DSN = "file:trustlend.db?cache=shared"
		}
		return nil
	}
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
