package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned by Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// Bucket reads and writes whole objects in one bucket.
type Bucket struct {
	client *minio.Client
	name   string
	region string
}

func NewBucket(client *minio.Client, cfg Config) *Bucket {
	return &Bucket{client: client, name: cfg.Bucket, region: cfg.Region}
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) exists(ctx context.Context) (bool, error) {
	ok, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return false, fmt.Errorf("stat bucket %s: %w", b.name, err)
	}
	return ok, nil
}

// Ensure creates the bucket if it does not exist yet.
func (b *Bucket) Ensure(ctx context.Context) error {
	ok, err := b.exists(ctx)
	if err != nil || ok {
		return err
	}
	if err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: b.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.name, err)
	}
	return nil
}

// Check backs readiness: the bucket must exist and be reachable.
func (b *Bucket) Check(ctx context.Context) error {
	ok, err := b.exists(ctx)
	if err == nil && !ok {
		err = fmt.Errorf("bucket %s does not exist", b.name)
	}
	return err
}

// Put uploads data under key, replacing any previous object.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload %s/%s: %w", b.name, key, err)
	}
	return nil
}

// Get downloads the object at key. A missing key wraps ErrObjectNotFound.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err == nil {
		defer obj.Close()
		var data []byte
		if data, err = io.ReadAll(obj); err == nil {
			return data, nil
		}
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, b.name, key)
	}
	return nil, fmt.Errorf("download %s/%s: %w", b.name, key, err)
}

// newTransport keeps dial and handshake timeouts short so a dead endpoint
// fails readiness quickly.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
