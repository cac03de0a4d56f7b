package mediacdn

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pixsuite/pixsuite/internal/pkg/env"
)

// Config holds media storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads media storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("MEDIA_CDN_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when media CDN is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when media CDN is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when media CDN is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the media CDN is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// NewObjectKey generates a unique S3 object key for an upload.
// Format: media/YYYY/MM/UUID.ext
func (c *Config) NewObjectKey(fileExtension string, now time.Time) string {
	return fmt.Sprintf("media/%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), fileExtension)
}
