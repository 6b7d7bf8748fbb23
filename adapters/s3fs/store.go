package s3fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/brettbedarf/treefs/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo describes one listed key. Prefix entries stand for "directories"
// and end with "/".
type ObjectInfo struct {
	Key      string
	ETag     string
	Size     int64
	IsPrefix bool
}

// Store is the object storage a tree is backed by. Missing keys are reported
// with errors wrapping [fs.ErrNotExist].
type Store interface {
	// List returns the keys below prefix. Without recursive, keys are cut at the
	// next "/" and reported once as prefixes.
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// MinioStore is a [Store] on one bucket of an S3 compatible service.
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore connects to the bucket configured in cfg.
func NewMinioStore(cfg config.ObjectStore) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3fs: endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3fs: connect %s: %w", cfg.Endpoint, err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Client exposes the underlying client.
func (m *MinioStore) Client() *minio.Client {
	return m.client
}

func (m *MinioStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	// stop the listing goroutine on early return
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectInfo
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, translateError(prefix, obj.Err)
		}
		if obj.Key == prefix {
			continue
		}
		out = append(out, ObjectInfo{
			Key:      obj.Key,
			ETag:     obj.ETag,
			Size:     obj.Size,
			IsPrefix: strings.HasSuffix(obj.Key, "/"),
		})
	}
	return out, nil
}

func (m *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateError(key, err)
	}
	return ObjectInfo{Key: info.Key, ETag: info.ETag, Size: info.Size}, nil
}

func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(key, err)
	}
	defer func() {
		_ = obj.Close()
	}()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(key, err)
	}
	return data, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return translateError(key, err)
	}
	return nil
}

func (m *MinioStore) Remove(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateError(key, err)
	}
	return nil
}

func translateError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return fmt.Errorf("%s: %w", key, fs.ErrNotExist)
	}
	return fmt.Errorf("%s: %w", key, err)
}
