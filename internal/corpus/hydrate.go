package corpus

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 15

// Release names one crate version to populate.
type Release struct {
	Name    string
	Version string
}

// ProgressFunc observes bulk populate progress. It is called once per
// finished release, successful or not, from worker goroutines.
type ProgressFunc func(done, total int)

// PopulateAll fans Populate out over many releases with bounded concurrency.
// Each release targets a distinct address and shares no in-memory state, so
// the calls are independent.
//
// A release that fails to populate is logged and its address removed, so the
// next run recreates it from scratch; the run itself keeps going. Only
// cleanup failures and context cancellation abort the run.
func (c *Corpus) PopulateAll(ctx context.Context, releases []Release, concurrency int, progress ProgressFunc) error {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var done atomic.Int64
	total := len(releases)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, r := range releases {
		g.Go(func() error {
			defer func() {
				if progress != nil {
					progress(int(done.Add(1)), total)
				}
			}()

			if _, err := c.Populate(ctx, r.Name, r.Version); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.log.Error().Err(err).Str("crate", r.Name).Str("version", r.Version).Msg("populating release")

				path, pathErr := c.vault.Path(r.Name, r.Version)
				if pathErr != nil {
					return pathErr
				}
				// A failed populate leaves the address absent, so this is
				// normally a no-op; it also clears non-directory conflicts so
				// the next run starts clean.
				if rmErr := os.RemoveAll(path); rmErr != nil {
					return rmErr
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// keyLocks hands out one mutex per in-flight release key and forgets the key
// once the last holder releases it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
