// Package s3store uploads to an S3-compatible bucket (AWS S3, R2, MinIO).
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/models"
	"clinic-app-server/internal/storage"
)

// PutObjectAPI is the part of the S3 client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ImageProbe returns the pixel dimensions of an encoded image.
type ImageProbe func(data []byte) (width, height int, err error)

// Client stores objects in one bucket.
type Client struct {
	api       PutObjectAPI
	bucket    string
	publicURL string
	probe     ImageProbe
	logger    *zap.Logger
}

// New wraps an existing S3 API client. probe may be nil.
func New(api PutObjectAPI, bucket, publicURL string, probe ImageProbe, logger *zap.Logger) *Client {
	return &Client{
		api:       api,
		bucket:    bucket,
		publicURL: publicURL,
		probe:     probe,
		logger:    logger,
	}
}

// NewFromConfig builds the AWS client from cfg. Static credentials are used
// when given, otherwise the default AWS credential chain applies.
func NewFromConfig(ctx context.Context, cfg config.S3Config, probe ImageProbe, logger *zap.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(api, cfg.Bucket, cfg.PublicURL, probe, logger), nil
}

// objectURL renders the public URL of key. publicURL is either a format
// string with one %s or a base URL.
func (c *Client) objectURL(key string) string {
	if strings.Contains(c.publicURL, "%s") {
		return fmt.Sprintf(c.publicURL, key)
	}
	return strings.TrimRight(c.publicURL, "/") + "/" + key
}

func (c *Client) Upload(ctx context.Context, obj storage.Object) (*models.StorageMetadata, error) {
	key := storage.ObjectKey(obj)

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Data),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := c.api.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	meta := &models.StorageMetadata{
		URL:       c.objectURL(key),
		StorageID: key,
		Format:    storage.Format(obj),
		Bytes:     int64(len(obj.Data)),
	}
	if c.probe != nil && strings.HasPrefix(obj.ContentType, "image/") {
		width, height, err := c.probe(obj.Data)
		if err != nil {
			c.logger.Debug("image probe failed", zap.String("key", key), zap.Error(err))
		} else {
			meta.Width, meta.Height = &width, &height
		}
	}
	return meta, nil
}

// EnsureFolder writes an empty marker object so the prefix shows up in bucket browsers.
func (c *Client) EnsureFolder(ctx context.Context, folder string) error {
	key := strings.Trim(folder, "/") + "/"
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("create folder marker %s: %w", key, err)
	}
	return nil
}
