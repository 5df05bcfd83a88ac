package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/withObsrvr/goes-fetcher/internal/logging"
)

// Rotating is a Catalog that replaces its current instance with a fresh one
// from a Factory whenever the instance reports ErrExhausted. The exhausted
// instance is closed before the call is retried once on its replacement.
type Rotating struct {
	factory Factory
	log     *slog.Logger

	mu        sync.Mutex
	cur       Catalog
	rotations int
}

// NewRotating opens the first instance from factory.
func NewRotating(ctx context.Context, factory Factory) (*Rotating, error) {
	cur, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	return &Rotating{
		factory: factory,
		cur:     cur,
		log:     logging.Component("source"),
	}, nil
}

// Rotations returns how many times the instance has been replaced.
func (r *Rotating) Rotations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotations
}

func (r *Rotating) current() Catalog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// rotate replaces stale unless another caller already did.
func (r *Rotating) rotate(ctx context.Context, stale Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != stale {
		return nil
	}

	if err := stale.Close(); err != nil {
		r.log.Warn("failed to close exhausted catalog", "error", err)
	}
	next, err := r.factory(ctx)
	if err != nil {
		r.cur = closedCatalog{}
		return fmt.Errorf("replace exhausted catalog: %w", err)
	}
	r.cur = next
	r.rotations++
	r.log.Debug("replaced exhausted catalog", "rotations", r.rotations)
	return nil
}

// do runs op on the current instance, rotating once on ErrExhausted.
func (r *Rotating) do(ctx context.Context, op func(Catalog) error) error {
	cur := r.current()
	err := op(cur)
	if !errors.Is(err, ErrExhausted) {
		return err
	}
	if err := r.rotate(ctx, cur); err != nil {
		return err
	}
	return op(r.current())
}

// List implements Catalog.List.
func (r *Rotating) List(ctx context.Context, prefix string) (keys []string, err error) {
	err = r.do(ctx, func(c Catalog) error {
		keys, err = c.List(ctx, prefix)
		return err
	})
	return keys, err
}

// ListDirs implements Catalog.ListDirs.
func (r *Rotating) ListDirs(ctx context.Context, prefix string) (dirs []string, err error) {
	err = r.do(ctx, func(c Catalog) error {
		dirs, err = c.ListDirs(ctx, prefix)
		return err
	})
	return dirs, err
}

// SizeOf implements Catalog.SizeOf.
func (r *Rotating) SizeOf(ctx context.Context, path string) (size int64, err error) {
	err = r.do(ctx, func(c Catalog) error {
		size, err = c.SizeOf(ctx, path)
		return err
	})
	return size, err
}

// Fetch implements Catalog.Fetch.
func (r *Rotating) Fetch(ctx context.Context, path, localPath string) error {
	return r.do(ctx, func(c Catalog) error {
		return c.Fetch(ctx, path, localPath)
	})
}

// Close closes the current instance.
func (r *Rotating) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.cur.Close()
	r.cur = closedCatalog{}
	return err
}

var errClosed = errors.New("catalog closed")

// closedCatalog stands in after Close or a failed replacement.
type closedCatalog struct{}

func (closedCatalog) List(_ context.Context, prefix string) ([]string, error) {
	return nil, &RemoteIOError{Op: "list", Path: prefix, Err: errClosed}
}

func (closedCatalog) ListDirs(_ context.Context, prefix string) ([]string, error) {
	return nil, &RemoteIOError{Op: "list", Path: prefix, Err: errClosed}
}

func (closedCatalog) SizeOf(_ context.Context, path string) (int64, error) {
	return 0, &RemoteIOError{Op: "size", Path: path, Err: errClosed}
}

func (closedCatalog) Fetch(_ context.Context, path, _ string) error {
	return &RemoteIOError{Op: "fetch", Path: path, Err: errClosed}
}

func (closedCatalog) Close() error { return nil }
