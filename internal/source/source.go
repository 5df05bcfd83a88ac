// Package source is the adapter over the public object store holding GOES data.
// Paths handed to and returned from a Catalog are "bucket/key" strings.
package source

import (
	"context"
	"errors"
	"fmt"
)

// Catalog is the narrow set of remote operations the workplan needs.
type Catalog interface {
	// List returns the objects directly under prefix (one level), sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// ListDirs returns the sub-folders directly under prefix, sorted.
	ListDirs(ctx context.Context, prefix string) ([]string, error)

	// SizeOf returns the byte size of one object.
	SizeOf(ctx context.Context, path string) (int64, error)

	// Fetch downloads one object to localPath.
	Fetch(ctx context.Context, path, localPath string) error

	// Close releases bucket handles and cached client state.
	Close() error
}

// Config selects and configures a Catalog backend.
type Config struct {
	Backend  string `json:"backend" yaml:"backend"`   // "s3" | "minio" | "file"
	Region   string `json:"region" yaml:"region"`     // AWS region of the public buckets
	Endpoint string `json:"endpoint" yaml:"endpoint"` // custom S3 endpoint (s3, minio)
	Root     string `json:"root" yaml:"root"`         // file backend: directory of bucket folders
	MaxOps   int    `json:"max_ops" yaml:"max_ops"`   // 0 = unlimited
}

// DefaultRegion is where NOAA hosts the GOES buckets.
const DefaultRegion = "us-east-1"

var (
	ErrInvalidBackend = errors.New("invalid source backend")

	// ErrExhausted is returned once an instance has served MaxOps operations.
	// Callers are expected to discard it and create a fresh one.
	ErrExhausted = errors.New("catalog instance exhausted")
)

// RemoteIOError wraps any list, size or fetch failure.
type RemoteIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *RemoteIOError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteIOError) Unwrap() error { return e.Err }

// Factory creates independent Catalog instances.
type Factory func(ctx context.Context) (Catalog, error)

// New constructs a catalog based on the configured backend.
func New(ctx context.Context, cfg Config) (Catalog, error) {
	switch cfg.Backend {
	case "", "s3":
		return NewS3Catalog(ctx, cfg)
	case "minio":
		return NewMinIOCatalog(cfg)
	case "file":
		if cfg.Root == "" {
			return nil, fmt.Errorf("%w: Root required for file backend", ErrInvalidBackend)
		}
		return NewFileCatalog(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackend, cfg.Backend)
	}
}

// NewFactory returns a Factory producing catalogs from cfg.
func NewFactory(cfg Config) Factory {
	return func(ctx context.Context) (Catalog, error) {
		return New(ctx, cfg)
	}
}

// opCounter enforces Config.MaxOps.
type opCounter struct {
	max int
	n   int
}

func (c *opCounter) take() error {
	if c.max > 0 && c.n >= c.max {
		return ErrExhausted
	}
	c.n++
	return nil
}
