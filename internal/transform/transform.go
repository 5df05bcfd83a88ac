// Package transform holds the named per-file transforms. Transforms are
// resolved by name so a worker process running the same binary can find the
// one its parent was configured with.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// Func transforms one entry. args carries caller-supplied parameters.
type Func func(ctx context.Context, entry workplan.Entry, args map[string]string) error

var ErrUnknownTransform = errors.New("unknown transform")

var (
	mu       sync.RWMutex
	registry = map[string]Func{}
)

func init() {
	Register("copy", Copy)
	Register("exec", Exec)
}

// Register adds fn under name, replacing any previous registration.
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Lookup returns the transform registered under name.
func Lookup(name string) (Func, error) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
	return fn, nil
}

// Names lists the registered transforms.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bind resolves name and fixes its args, yielding a query.TransformFunc.
func Bind(name string, args map[string]string) (query.TransformFunc, error) {
	fn, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, entry workplan.Entry) error {
		return fn(ctx, entry, args)
	}, nil
}
