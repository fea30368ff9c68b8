package signvideo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tamkeen-edu/tamkeen/internal/convert"
)

// BucketConfig locates an S3-compatible bucket.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	URLExpiry time.Duration // lifetime of presigned video URLs
}

// Bucket reads clips from and writes rendered videos to object storage.
type Bucket struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewBucket connects to the endpoint. It does not touch the network.
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = convert.DefaultURLExpiry
	}
	return &Bucket{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

// URLExpiry is the lifetime of URLs returned by Put.
func (b *Bucket) URLExpiry() time.Duration { return b.expiry }

// Ensure creates the bucket if it does not exist.
func (b *Bucket) Ensure(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.bucket, err)
	}
	slog.Info("created bucket", "bucket", b.bucket)
	return nil
}

// Fetch reads the object named by ref.
func (b *Bucket) Fetch(ctx context.Context, ref convert.AssetRef) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, string(ref), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", ref, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(io.LimitReader(obj, maxClipBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", ref, err)
	}
	if len(data) > maxClipBytes {
		return nil, fmt.Errorf("object %s larger than %d bytes", ref, maxClipBytes)
	}
	return data, nil
}

// Put uploads video under key and returns a presigned GET URL.
func (b *Bucket) Put(ctx context.Context, key string, video []byte) (string, error) {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(video), int64(len(video)), minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, b.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
