package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/logging"
)

// DefaultS3Endpoint is used by the MinIO backend when no endpoint is set.
const DefaultS3Endpoint = "s3.amazonaws.com"

// MinIOCatalog implements Catalog with the MinIO client against any
// S3-compatible endpoint, including the public AWS one.
type MinIOCatalog struct {
	client *minio.Client
	mu     sync.Mutex
	ops    opCounter
	log    *slog.Logger
}

// NewMinIOCatalog creates an anonymous MinIO-backed catalog.
func NewMinIOCatalog(cfg Config) (*MinIOCatalog, error) {
	endpoint := cfg.Endpoint
	secure := true
	switch {
	case endpoint == "":
		endpoint = DefaultS3Endpoint
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
		secure = false
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}

	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("", "", ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOCatalog{
		client: client,
		ops:    opCounter{max: cfg.MaxOps},
		log:    logging.Component("source").With("backend", "minio", "endpoint", endpoint),
	}, nil
}

func (c *MinIOCatalog) take() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.take()
}

func (c *MinIOCatalog) list(ctx context.Context, prefix string) (files, dirs []string, err error) {
	if err := c.take(); err != nil {
		return nil, nil, err
	}

	bucketName, keyPrefix := layout.Split(prefix)
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	for obj := range c.client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{
		Prefix:    keyPrefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, nil, obj.Err
		}
		full := layout.Join(bucketName, obj.Key)
		if strings.HasSuffix(obj.Key, "/") {
			dirs = append(dirs, strings.TrimSuffix(full, "/"))
		} else {
			files = append(files, full)
		}
	}

	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}

// List implements Catalog.List.
func (c *MinIOCatalog) List(ctx context.Context, prefix string) ([]string, error) {
	files, _, err := c.list(ctx, prefix)
	if err != nil {
		return nil, &RemoteIOError{Op: "list", Path: prefix, Err: err}
	}
	return files, nil
}

// ListDirs implements Catalog.ListDirs.
func (c *MinIOCatalog) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	_, dirs, err := c.list(ctx, prefix)
	if err != nil {
		return nil, &RemoteIOError{Op: "list", Path: prefix, Err: err}
	}
	return dirs, nil
}

// SizeOf implements Catalog.SizeOf.
func (c *MinIOCatalog) SizeOf(ctx context.Context, path string) (int64, error) {
	if err := c.take(); err != nil {
		return 0, &RemoteIOError{Op: "size", Path: path, Err: err}
	}

	bucketName, key := layout.Split(path)
	info, err := c.client.StatObject(ctx, bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, &RemoteIOError{Op: "size", Path: path, Err: err}
	}
	return info.Size, nil
}

// Fetch implements Catalog.Fetch. FGetObject stages into a part file and
// renames on completion.
func (c *MinIOCatalog) Fetch(ctx context.Context, path, localPath string) error {
	if err := c.take(); err != nil {
		return &RemoteIOError{Op: "fetch", Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return &RemoteIOError{Op: "fetch", Path: path, Err: err}
	}

	bucketName, key := layout.Split(path)
	if err := c.client.FGetObject(ctx, bucketName, key, localPath, minio.GetObjectOptions{}); err != nil {
		return &RemoteIOError{Op: "fetch", Path: path, Err: err}
	}

	c.log.Debug("fetched object", "path", path, "local_path", localPath)
	return nil
}

// Close is a no-op; the MinIO client holds no bucket handles.
func (c *MinIOCatalog) Close() error {
	return nil
}
