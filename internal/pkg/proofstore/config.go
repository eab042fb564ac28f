package proofstore

import (
	"errors"

	"github.com/Shah039zaib/b2automate/internal/pkg/env"
)

// Config holds the proof-of-payment bucket settings.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	KeyPrefix       string
	Enabled         bool
}

// LoadConfig loads proof store configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("PROOF_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("PROOF_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("PROOF_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("PROOF_S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("PROOF_S3_ENDPOINT_URL", ""),
		KeyPrefix:       env.GetEnv("PROOF_S3_KEY_PREFIX", "proofs/"),
		Enabled:         env.GetEnvBool("PROOF_S3_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("PROOF_S3_ACCESS_KEY_ID is required when the proof store is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("PROOF_S3_SECRET_ACCESS_KEY is required when the proof store is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("PROOF_S3_BUCKET_NAME is required when the proof store is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if proof references are checked against the bucket.
func (c *Config) IsEnabled() bool {
	return c.Enabled
}
