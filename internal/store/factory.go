package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fileshare/internal/config"
	"fileshare/internal/fileshare"
)

// NewStoreFromConfig creates a Store implementation based on the store config type.
func NewStoreFromConfig(cfg config.StoreConfig) (fileshare.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return newS3StoreFromConfig(context.Background(), cfg)
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

func newS3StoreFromConfig(ctx context.Context, cfg config.StoreConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
}
