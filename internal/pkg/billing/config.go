package billing

import (
	"strconv"
	"time"

	"github.com/Shah039zaib/b2automate/internal/pkg/env"
)

// Config holds the billing engine's tunables.
type Config struct {
	Provider            string
	WebhookTimeout      time.Duration
	ManualPeriod        time.Duration
	ExpirySweepInterval time.Duration
	RetryInterval       time.Duration
	RetryMinAge         time.Duration
	MaxWebhookAttempts  int
	SweepBatchSize      int
	InternalToken       string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Provider:            "stripe",
		WebhookTimeout:      10 * time.Second,
		ManualPeriod:        30 * 24 * time.Hour,
		ExpirySweepInterval: 15 * time.Minute,
		RetryInterval:       2 * time.Minute,
		RetryMinAge:         time.Minute,
		MaxWebhookAttempts:  20,
		SweepBatchSize:      100,
	}
}

// LoadConfig reads billing settings from the environment.
func LoadConfig() Config {
	def := DefaultConfig()
	return Config{
		Provider:            normalizeProvider(env.GetEnv("BILLING_PROVIDER", def.Provider)),
		WebhookTimeout:      env.GetEnvDuration("BILLING_WEBHOOK_TIMEOUT", def.WebhookTimeout),
		ManualPeriod:        time.Duration(env.GetEnvInt("BILLING_MANUAL_PERIOD_DAYS", 30)) * 24 * time.Hour,
		ExpirySweepInterval: env.GetEnvDuration("BILLING_EXPIRY_SWEEP_INTERVAL", def.ExpirySweepInterval),
		RetryInterval:       env.GetEnvDuration("BILLING_WEBHOOK_RETRY_INTERVAL", def.RetryInterval),
		RetryMinAge:         env.GetEnvDuration("BILLING_WEBHOOK_RETRY_MIN_AGE", def.RetryMinAge),
		MaxWebhookAttempts:  env.GetEnvInt("BILLING_WEBHOOK_MAX_ATTEMPTS", def.MaxWebhookAttempts),
		SweepBatchSize:      env.GetEnvInt("BILLING_SWEEP_BATCH_SIZE", def.SweepBatchSize),
		InternalToken:       env.GetEnv("BILLING_INTERNAL_TOKEN", ""),
	}
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
