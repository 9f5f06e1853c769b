package config

const (
	EnvPrefix = "TRUSTLEND"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "TRUSTLEND_APP_ENV"
	EnvPort     = "TRUSTLEND_APP_PORT"
	EnvRedisURL = "TRUSTLEND_REDIS_URL"

	EnvDBDSN  = "TRUSTLEND_DB_DSN"
	EnvDBHost = "TRUSTLEND_DB_HOST"
	EnvDBUser = "TRUSTLEND_DB_USER"
	EnvDBName = "TRUSTLEND_DB_NAME"

	EnvJWTSecret = "TRUSTLEND_JWT_SECRET"
	EnvJWTIssuer = "TRUSTLEND_JWT_ISSUER"

	EnvScorePolicy = "TRUSTLEND_SCORE_POLICY"
	EnvLimitTiers  = "TRUSTLEND_LIMIT_TIERS"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	ScorePolicyLifecycle = "lifecycle"
	ScorePolicyLateness  = "lateness"
)

var scoreCeilings = map[string]int{
	ScorePolicyLifecycle: 1000,
	ScorePolicyLateness:  150,
}

var defaultTierSpecs = map[string]string{
	ScorePolicyLifecycle: "Bronze:0:100:1,Silver:400:500:3,Gold:600:2000:5,Platinum:750:5000:10,Diamond:900:10000:15",
	ScorePolicyLateness:  "Bronze:0:100:1,Silver:50:500:3,Gold:75:2000:5,Platinum:100:5000:10,Diamond:125:10000:15",
}

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
