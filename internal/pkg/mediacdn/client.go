package mediacdn

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// presignExpiry bounds how long a client can hold an unused upload URL.
const presignExpiry = 15 * time.Minute

// Client wraps the S3 presign client for direct-to-storage uploads
type Client struct {
	presigner *s3.PresignClient
	config    *Config
}

// UploadTicket is a presigned PUT grant handed to the client after a
// successful quota consume.
type UploadTicket struct {
	ObjectKey string `json:"objectKey"`
	UploadURL string `json:"uploadUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

// NewClient creates a presigning client for the configured bucket
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("media CDN is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
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
			o.UseAccelerate = false
		}
	})

	log.Infof("[MediaCDN] initialized presign client for bucket: %s", cfg.BucketName)
	return &Client{
		presigner: s3.NewPresignClient(s3Client),
		config:    cfg,
	}, nil
}

// PresignUpload issues a short-lived PUT URL for a fresh object key.
func (c *Client) PresignUpload(ctx context.Context, fileExtension, contentType string) (*UploadTicket, error) {
	key := c.config.NewObjectKey(fileExtension, time.Now())

	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}

	return &UploadTicket{
		ObjectKey: key,
		UploadURL: req.URL,
		ExpiresIn: int(presignExpiry.Seconds()),
	}, nil
}
