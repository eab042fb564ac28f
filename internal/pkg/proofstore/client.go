// Package proofstore verifies that proof-of-payment uploads referenced by
// manual payments exist in object storage.
package proofstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

type headObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Client checks proof references with HeadObject.
type Client struct {
	s3     headObjectAPI
	config *Config
}

// NewClient creates a proof store client.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("proof store is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[ProofStore] Checking proofs in bucket %s under %q", cfg.BucketName, cfg.KeyPrefix)
	return &Client{s3: s3Client, config: cfg}, nil
}

// Exists reports whether ref names an uploaded object under the configured
// prefix. References outside the prefix never exist.
func (c *Client) Exists(ctx context.Context, ref string) (bool, error) {
	key := strings.TrimLeft(strings.TrimSpace(ref), "/")
	if key == "" || strings.Contains(key, "..") || !strings.HasPrefix(key, c.config.KeyPrefix) {
		return false, nil
	}

	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, fmt.Errorf("head proof object %s: %w", key, err)
}
