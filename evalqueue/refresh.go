package evalqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyListing is returned when the store lists no request files
// although a non-empty snapshot was already published. Request files are
// never deleted, so such a listing is treated as a failure.
var ErrEmptyListing = errors.New("no submission request files listed")

// refresh lists every request file, fetches them concurrently and
// publishes the new snapshot only after all files were processed.
// A failing file is skipped. A failing listing keeps the old snapshot.
func (c *Cache) refresh(ctx context.Context, gen uint64) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.clock.Now()
	defer func() {
		refreshHistogram.Observe(c.clock.Since(start).Seconds())
	}()

	listCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	keys, err := c.store.List(listCtx, c.prefix)
	cancel()
	if err != nil {
		refreshFailures.Inc()
		return nil, fmt.Errorf("failed to list submission requests: %w", err)
	}

	files := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			files = append(files, k)
		}
	}
	if len(files) == 0 {
		if p := c.current.Load(); p != nil && p.snap.Len() > 0 {
			refreshFailures.Inc()
			return nil, fmt.Errorf("listing %q: %w", c.prefix, ErrEmptyListing)
		}
	}
	c.logger.Info("refreshing evaluation queue", "files", len(files))

	var (
		entries  = make([]Entry, len(files))
		ok       = make([]bool, len(files))
		mu       sync.Mutex
		skipErrs *multierror.Error
		dropped  atomic.Int32
		progress = newProgress(c, len(files))
	)

	g := errgroup.Group{}
	g.SetLimit(c.concurrency)
	for i, key := range files {
		g.Go(func() error {
			defer progress.inc()

			entry, err := c.fetchEntry(ctx, key)
			if errors.Is(err, errUnknownStatus) {
				dropped.Add(1)
				return nil
			}
			if err != nil {
				skippedFiles.Inc()
				mu.Lock()
				skipErrs = multierror.Append(skipErrs, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
				return nil
			}
			entries[i] = entry
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	parsed := make([]Entry, 0, len(files))
	for i := range files {
		if ok[i] {
			parsed = append(parsed, entries[i])
		}
	}
	snap := newSnapshot(parsed)
	c.publish(snap, gen)

	if err := skipErrs.ErrorOrNil(); err != nil {
		c.logger.Warn("skipped submission requests",
			"count", len(skipErrs.Errors),
			"error", err)
	}
	c.logger.Info("evaluation queue refreshed",
		"pending", len(snap.Pending),
		"evaluating", len(snap.Evaluating),
		"finished", len(snap.Finished),
		"dropped", dropped.Load(),
		"duration", c.clock.Since(start).String())
	return snap, nil
}

func (c *Cache) fetchEntry(ctx context.Context, key string) (Entry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	content, err := c.store.Download(fetchCtx, key)
	if err != nil {
		return Entry{}, err
	}
	return parseRequest(content)
}

// progress logs at every tenth of the work.
type progress struct {
	c     *Cache
	total int
	done  atomic.Int64
}

func newProgress(c *Cache, total int) *progress {
	return &progress{c: c, total: total}
}

func (p *progress) inc() {
	n := int(p.done.Add(1))
	if p.total < 10 {
		if n == p.total {
			p.c.logger.Debug("refresh progress", "done", n, "total", p.total, "percent", 100)
		}
		return
	}
	prev := (n - 1) * 10 / p.total
	cur := n * 10 / p.total
	if cur > prev {
		p.c.logger.Info("refresh progress", "done", n, "total", p.total, "percent", cur*10)
	}
}
