// Package archive uploads vault snapshots and settlement reports to an
// S3-compatible object store (AWS S3, MinIO, R2, iDrive e2).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/atmx/zdte-vault/internal/model"
)

// ClientConfig configures the object store connection. Leave Endpoint empty
// for AWS S3.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
	Prefix         string // key prefix, e.g. "zdte"
}

// ObjectPutter is the subset of *s3.Client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes vault data as JSON objects.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New connects to the object store described by cfg.
func New(ctx context.Context, cfg ClientConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, opts...), cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates an archiver over an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Snapshot uploads the full vault state and returns the object key.
func (a *S3Archiver) Snapshot(ctx context.Context, label string, st model.State, at time.Time) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("archive: marshal snapshot: %w", err)
	}
	key := a.key(label, "snapshots", at, "json")
	if err := a.put(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Settlements uploads settled positions as JSONL and returns the object
// key. Open positions are skipped; nothing is written when none are
// settled.
func (a *S3Archiver) Settlements(ctx context.Context, label string, positions []model.Position, at time.Time) (string, error) {
	settled := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if p.Settled {
			settled = append(settled, p)
		}
	}
	if len(settled) == 0 {
		return "", nil
	}

	data, err := marshalJSONL(settled)
	if err != nil {
		return "", fmt.Errorf("archive: marshal settlements: %w", err)
	}
	key := a.key(label, "settlements", at, "jsonl")
	if err := a.put(ctx, key, data, "application/x-ndjson"); err != nil {
		return "", err
	}
	return key, nil
}

func (a *S3Archiver) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	return nil
}

// key builds {prefix}/{label}/{kind}/{YYYY-MM-DD}/{unix-nanos}.{ext}.
func (a *S3Archiver) key(label, kind string, at time.Time, ext string) string {
	name := fmt.Sprintf("%s/%s/%s/%d.%s", label, kind, at.UTC().Format("2006-01-02"), at.UnixNano(), ext)
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
