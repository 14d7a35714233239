package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Bucket string
	// Prefix is prepended to every archive key.
	Prefix string
	// PathStyle is required by local emulators.
	PathStyle bool
}

// ObjectAPI is the part of *s3.Client the archive uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Client struct {
	cfg S3Config
	s3  ObjectAPI
}

func NewClient(awsCfg aws.Config, cfg S3Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return &Client{cfg: cfg, s3: s3Client}, nil
}

// NewClientWithAPI wraps an existing object API, e.g. a fake in tests.
func NewClientWithAPI(api ObjectAPI, cfg S3Config) *Client {
	return &Client{cfg: cfg, s3: api}
}

// ArchiveKey is the object key of one archived notification.
func ArchiveKey(owner, timestamp, id string) string {
	return fmt.Sprintf("events/%s/%s-%s.json", owner, timestamp, id)
}

// Put writes body under key. Putting the same key twice overwrites it with
// the same content.
func (c *Client) Put(ctx context.Context, key string, body []byte) error {
	if c == nil {
		return errors.New("s3 client not initialized")
	}
	if key == "" {
		return errors.New("object key is required")
	}
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(c.cfg.Prefix + key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s%s: %w", c.cfg.Bucket, c.cfg.Prefix, key, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("s3 client not initialized")
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.cfg.Prefix + key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
