// Package archive exports run artifacts to S3-compatible object storage
// (AWS S3, Cloudflare R2, MinIO).
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config holds object storage settings
type Config struct {
	Bucket          string
	Endpoint        string // empty for AWS S3; set for R2 or MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // prepended to every key
}

// Enabled reports whether archiving is configured
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectAPI interface {
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client uploads, lists and deletes archived artifacts
type Client struct {
	bucket   string
	prefix   string
	uploader uploadAPI
	objects  objectAPI
	log      zerolog.Logger
}

// NewClient builds an S3 client from static credentials. Custom endpoints use
// path-style addressing.
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newClient(cfg.Bucket, cfg.Prefix, manager.NewUploader(s3Client), s3Client, log), nil
}

func newClient(bucket, prefix string, uploader uploadAPI, objects objectAPI, log zerolog.Logger) *Client {
	return &Client{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: uploader,
		objects:  objects,
		log:      log.With().Str("component", "archive").Str("bucket", bucket).Logger(),
	}
}

func (c *Client) key(name string) string {
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

// Upload streams body to key
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	fullKey := c.key(key)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(fullKey),
		Body:        body,
		ContentType: aws.String("application/msgpack"),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}

	c.log.Debug().Str("key", fullKey).Int64("bytes", size).Msg("Uploaded artifact")
	return nil
}

// Archive stores data under key
func (c *Client) Archive(ctx context.Context, key string, data []byte) error {
	return c.Upload(ctx, key, bytes.NewReader(data), int64(len(data)))
}

// List returns objects under prefix (relative to the client prefix), oldest first
func (c *Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(c.objects, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.key(prefix)),
	})

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})
	return objects, nil
}

// Delete removes an object by its full key as returned by List
func (c *Client) Delete(ctx context.Context, fullKey string) error {
	_, err := c.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", fullKey, err)
	}
	return nil
}

// RotateOlderThan deletes objects under prefix last modified before maxAge ago.
// Returns the number of deleted objects. Zero maxAge keeps everything.
func (c *Client) RotateOlderThan(ctx context.Context, prefix string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	objects, err := c.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := c.Delete(ctx, obj.Key); err != nil {
			c.log.Warn().Err(err).Str("key", obj.Key).Msg("Failed to delete archived artifact")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		c.log.Info().Int("deleted", deleted).Dur("max_age", maxAge).Msg("Rotated archived artifacts")
	}
	return deleted, nil
}
