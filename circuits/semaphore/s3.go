package semaphore

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/garagevoting/garage-node/log"
)

// S3Config points at an S3 compatible object store.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Public    bool   `mapstructure:"public"`
}

// S3Store reads and publishes artifacts in an S3 bucket.
type S3Store struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Store builds a client for cfg. Static credentials are used when set,
// otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cmp.Or(cfg.Region, "us-east-1")),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, cfg: cfg}, nil
}

// Open streams bucket/key from offset.
func (s *S3Store) Open(ctx context.Context, bucket, key string, offset int64) (io.ReadCloser, bool, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return nil, false, fmt.Errorf("%w: s3://%s/%s", ErrArtifactMissing, bucket, key)
		}
		return nil, false, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, offset > 0 && out.ContentRange != nil, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}

func (s *S3Store) key(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return s.cfg.Prefix + "/" + name
}

// URL returns the s3:// location of an object name in the configured bucket.
func (s *S3Store) URL(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, s.key(name))
}

// Put uploads data under the configured prefix and returns the object key.
func (s *S3Store) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := s.key(name)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if s.cfg.Public {
		in.ACL = s3types.ObjectCannedACLPublicRead
	}
	log.Infow("uploading object to s3", "bucket", s.cfg.Bucket, "key", key, "size", len(data))
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return key, nil
}

// Publish uploads the artifacts and their manifest. Artifact URLs in the
// manifest point at their s3 location.
func (s *S3Store) Publish(ctx context.Context, ca *CircuitArtifacts) error {
	for _, a := range ca.all() {
		if _, err := s.Put(ctx, a.Hash.Hex(), a.Content); err != nil {
			return err
		}
		a.RemoteURL = s.URL(a.Hash.Hex())
	}
	manifest, err := ca.Manifest()
	if err != nil {
		return err
	}
	_, err = s.Put(ctx, ManifestName(ca.Depth), manifest)
	return err
}
