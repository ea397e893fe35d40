package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig configures report uploads.
type ObjectStoreConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
}

// ObjectStore keeps generated reports in a MinIO bucket and hands out
// presigned download links.
type ObjectStore struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	store := &ObjectStore{client: client, bucket: cfg.Bucket, presignTTL: cfg.PresignTTL}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (o *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", o.bucket, err)
	}
	if !exists {
		if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", o.bucket, err)
		}
	}
	return nil
}

// Upload stores result under key and returns a presigned GET URL for it.
func (o *ObjectStore) Upload(ctx context.Context, key string, result *Result) (string, time.Time, error) {
	_, err := o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
		UserMetadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("upload report: %w", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	presigned, err := o.client.PresignedGetObject(ctx, o.bucket, key, o.presignTTL, params)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign report: %w", err)
	}
	return presigned.String(), time.Now().Add(o.presignTTL), nil
}

// Ping checks that the bucket is reachable.
func (o *ObjectStore) Ping(ctx context.Context) error {
	if _, err := o.client.BucketExists(ctx, o.bucket); err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	return nil
}

// ObjectKey names an uploaded report. Keys are grouped per authority and
// login so reports of different users never collide.
func ObjectKey(req Request, id string, result *Result) string {
	return fmt.Sprintf("reports/%s/%s/%s-%s",
		sanitizeFilename(req.Requester.Authority),
		sanitizeFilename(req.Requester.Login),
		id,
		result.Filename)
}
