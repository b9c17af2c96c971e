package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the bucket holding item media.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	Bucket          string
	Expiry          time.Duration
}

// MediaResolver turns object keys into presigned GET URLs.
type MediaResolver struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMediaResolver builds a resolver. Setting the region keeps presigning
// local: the client never has to ask the server for the bucket location.
func NewMediaResolver(cfg Config) (*MediaResolver, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = time.Hour
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MediaResolver{client: client, bucket: cfg.Bucket, expiry: cfg.Expiry}, nil
}

// ResolveURL presigns ref, an object key optionally prefixed with the bucket
// name. Absolute http(s) URLs are returned unchanged.
func (r *MediaResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	key := strings.TrimPrefix(strings.TrimPrefix(ref, "/"), r.bucket+"/")
	if key == "" {
		return "", fmt.Errorf("empty media reference")
	}
	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", r.bucket, key, err)
	}
	return u.String(), nil
}
