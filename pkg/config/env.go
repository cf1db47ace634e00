package config

const EnvPrefix = "PRINTLAB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Variables referenced by validation messages and tests.
const (
	EnvAppEnv    = "PRINTLAB_APP_ENV"
	EnvPort      = "PRINTLAB_APP_PORT"
	EnvTimeZone  = "PRINTLAB_TIMEZONE"
	EnvLogFormat = "PRINTLAB_LOG_FORMAT"

	EnvDBDSN  = "PRINTLAB_DB_DSN"
	EnvDBHost = "PRINTLAB_DB_HOST"
	EnvDBUser = "PRINTLAB_DB_USER"
	EnvDBName = "PRINTLAB_DB_NAME"

	EnvRedisURL = "PRINTLAB_REDIS_URL"

	EnvJWTSecret = "PRINTLAB_JWT_SECRET"
	EnvJWTIssuer = "PRINTLAB_JWT_ISSUER"

	EnvGatewaySandboxURL    = "PRINTLAB_GATEWAY_SANDBOX_URL"
	EnvGatewayProductionURL = "PRINTLAB_GATEWAY_PRODUCTION_URL"
	EnvGatewayPrivateKey    = "PRINTLAB_GATEWAY_PRIVATE_KEY"
	EnvGatewayEventsSecret  = "PRINTLAB_GATEWAY_EVENTS_SECRET"
	EnvGatewayTimeout       = "PRINTLAB_GATEWAY_TIMEOUT"

	EnvPricingShippingCost = "PRINTLAB_PRICING_SHIPPING_COST"
	EnvPricingFreeShipping = "PRINTLAB_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvPricingTaxRate      = "PRINTLAB_PRICING_TAX_RATE"

	EnvOutboxBatchSize   = "PRINTLAB_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxPollMS      = "PRINTLAB_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxMaxAttempts = "PRINTLAB_OUTBOX_MAX_ATTEMPTS"

	EnvRateLimitWindow = "PRINTLAB_RATE_LIMIT_WINDOW"

	EnvCronInterval        = "PRINTLAB_CRON_INTERVAL"
	EnvCronPendingOrderTTL = "PRINTLAB_CRON_PENDING_ORDER_TTL"
	EnvCronOutboxRetention = "PRINTLAB_CRON_OUTBOX_RETENTION_DAYS"
)
