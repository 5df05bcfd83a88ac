package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/s3blob"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/logging"
)

// bucketOpener opens a bucket by name.
type bucketOpener func(ctx context.Context, name string) (*blob.Bucket, error)

// BlobCatalog implements Catalog over gocloud.dev buckets.
// Buckets are opened on first use and kept until Close.
type BlobCatalog struct {
	open    bucketOpener
	mu      sync.Mutex
	buckets map[string]*blob.Bucket
	ops     opCounter
	log     *slog.Logger
}

// NewS3Catalog reads the public NOAA buckets anonymously.
func NewS3Catalog(ctx context.Context, cfg Config) (*BlobCatalog, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	open := func(ctx context.Context, name string) (*blob.Bucket, error) {
		return s3blob.OpenBucketV2(ctx, client, name, nil)
	}
	return newBlobCatalog(open, cfg.MaxOps, "s3"), nil
}

// NewFileCatalog serves buckets from sub-directories of cfg.Root.
func NewFileCatalog(cfg Config) (*BlobCatalog, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid file root %s: %w", cfg.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file root %s is not a directory", cfg.Root)
	}

	open := func(_ context.Context, name string) (*blob.Bucket, error) {
		return fileblob.OpenBucket(filepath.Join(cfg.Root, name), nil)
	}
	return newBlobCatalog(open, cfg.MaxOps, "file"), nil
}

func newBlobCatalog(open bucketOpener, maxOps int, backend string) *BlobCatalog {
	return &BlobCatalog{
		open:    open,
		buckets: make(map[string]*blob.Bucket),
		ops:     opCounter{max: maxOps},
		log:     logging.Component("source").With("backend", backend),
	}
}

// bucket returns the cached handle for name and accounts for one operation.
func (c *BlobCatalog) bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ops.take(); err != nil {
		return nil, err
	}
	if b, ok := c.buckets[name]; ok {
		return b, nil
	}

	b, err := c.open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}
	c.buckets[name] = b
	return b, nil
}

// List implements Catalog.List.
func (c *BlobCatalog) List(ctx context.Context, prefix string) ([]string, error) {
	objs, err := c.list(ctx, prefix)
	if err != nil {
		return nil, &RemoteIOError{Op: "list", Path: prefix, Err: err}
	}

	var keys []string
	for _, obj := range objs {
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

// ListDirs implements Catalog.ListDirs.
func (c *BlobCatalog) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	objs, err := c.list(ctx, prefix)
	if err != nil {
		return nil, &RemoteIOError{Op: "list", Path: prefix, Err: err}
	}

	var dirs []string
	for _, obj := range objs {
		if obj.IsDir {
			dirs = append(dirs, strings.TrimSuffix(obj.Key, "/"))
		}
	}
	return dirs, nil
}

// list returns one delimiter level under prefix, with keys rewritten to full paths.
func (c *BlobCatalog) list(ctx context.Context, prefix string) ([]blob.ListObject, error) {
	bucketName, keyPrefix := layout.Split(prefix)
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	b, err := c.bucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	iter := b.List(&blob.ListOptions{
		Prefix:    keyPrefix,
		Delimiter: "/",
	})

	var out []blob.ListObject
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		obj.Key = layout.Join(bucketName, obj.Key)
		out = append(out, *obj)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	c.log.Debug("listed prefix", "prefix", prefix, "objects", len(out))
	return out, nil
}

// SizeOf implements Catalog.SizeOf.
func (c *BlobCatalog) SizeOf(ctx context.Context, path string) (int64, error) {
	bucketName, key := layout.Split(path)
	b, err := c.bucket(ctx, bucketName)
	if err != nil {
		return 0, &RemoteIOError{Op: "size", Path: path, Err: err}
	}

	attrs, err := b.Attributes(ctx, key)
	if err != nil {
		return 0, &RemoteIOError{Op: "size", Path: path, Err: err}
	}
	return attrs.Size, nil
}

// Fetch implements Catalog.Fetch. The object is written to a temp file in the
// destination directory and renamed into place once complete.
func (c *BlobCatalog) Fetch(ctx context.Context, path, localPath string) error {
	if err := c.fetch(ctx, path, localPath); err != nil {
		return &RemoteIOError{Op: "fetch", Path: path, Err: err}
	}
	return nil
}

func (c *BlobCatalog) fetch(ctx context.Context, path, localPath string) error {
	bucketName, key := layout.Split(path)
	b, err := c.bucket(ctx, bucketName)
	if err != nil {
		return err
	}

	reader, err := b.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open object: %w", err)
	}
	defer reader.Close()

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".fetch-*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("copy object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, localPath, err)
	}

	c.log.Debug("fetched object", "path", path, "local_path", localPath)
	return nil
}

// Close releases all opened buckets.
func (c *BlobCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, b := range c.buckets {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close bucket %s: %w", name, err)
		}
		delete(c.buckets, name)
	}
	return firstErr
}
