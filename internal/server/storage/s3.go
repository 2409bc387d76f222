// Package storage keeps generated artifacts in an S3-compatible bucket
// (MinIO in development) and hands out presigned download URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/neoma/internal/server/config"
	"github.com/google/uuid"
)

const (
	keyPrefix = "artifacts/"
	// MaxKeyLength bounds artifact references accepted from clients.
	MaxKeyLength = 200
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type S3Store struct {
	bucket          string
	presignValidity time.Duration
	client          *s3.Client
	presigner       *s3.PresignClient
}

func NewS3Store(ctx context.Context, cfg *sc.Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		bucket:          cfg.S3Bucket,
		presignValidity: cfg.PresignValidity,
		client:          client,
		presigner:       newS3PresignClient(client),
	}, nil
}

// NewArtifactKey returns a fresh date-partitioned object key.
func NewArtifactKey() string {
	d := time.Now().UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s.png", keyPrefix, d.Year(), d.Month(), d.Day(), uuid.New())
}

// IsArtifactKey reports whether ref looks like a key produced by
// NewArtifactKey. Inline data URIs and oversized values are rejected.
func IsArtifactKey(ref string) bool {
	if ref == "" || len(ref) > MaxKeyLength {
		return false
	}
	if strings.HasPrefix(strings.ToLower(ref), "data:") || strings.Contains(ref, "..") {
		return false
	}
	return strings.HasPrefix(ref, keyPrefix)
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := presignGetObject(s.presigner, ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.presignValidity))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
