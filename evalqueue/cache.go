// Package evalqueue caches the evaluation queue: every submission request
// in the request store, grouped by status.
package evalqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/programme-lv/evalboard/remotestore"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL          = 5 * time.Minute
	defaultFetchTimeout = 30 * time.Second
	defaultConcurrency  = 50
)

type published struct {
	snap *Snapshot
	at   time.Time
	gen  uint64
}

type Cache struct {
	store        remotestore.Store
	prefix       string
	ttl          time.Duration
	fetchTimeout time.Duration
	concurrency  int
	clock        clockwork.Clock
	logger       *slog.Logger

	current atomic.Pointer[published]
	gen     atomic.Uint64 // bumped by Invalidate

	sf        singleflight.Group
	refreshMu sync.Mutex // one refresh at a time

	schedMu   sync.Mutex
	scheduler gocron.Scheduler
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

func WithConcurrency(n int) Option {
	return func(c *Cache) { c.concurrency = n }
}

// NewCache creates a cache over every JSON file under prefix.
// Nothing is fetched until the first read or refresh.
func NewCache(store remotestore.Store, prefix string, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		prefix:       prefix,
		ttl:          defaultTTL,
		fetchTimeout: defaultFetchTimeout,
		concurrency:  defaultConcurrency,
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default().With("module", "evalqueue"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fresh(p *published) bool {
	return p != nil &&
		p.gen == c.gen.Load() &&
		c.clock.Since(p.at) < c.ttl
}

// GetSnapshot returns the published snapshot, refreshing it first when it
// has expired or was invalidated. If that refresh fails the stale snapshot
// is served. An error is returned only when nothing was ever published.
func (c *Cache) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	p := c.current.Load()
	if c.fresh(p) {
		return p.snap, nil
	}

	snap, err := c.Refresh(ctx)
	if err == nil {
		return snap, nil
	}
	if p != nil {
		c.logger.Warn("serving stale queue snapshot",
			"error", err,
			"age", c.clock.Since(p.at).String())
		return p.snap, nil
	}
	return nil, err
}

// Invalidate marks the published snapshot stale. The next read refreshes.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
}

// Refresh rebuilds the snapshot from the store and publishes it.
// Concurrent calls for the same generation share one refresh.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	gen := c.gen.Load()
	ch := c.sf.DoChan(fmt.Sprintf("refresh-%d", gen), func() (any, error) {
		// the refresh outlives the caller that happened to start it
		return c.refresh(context.WithoutCancel(ctx), gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *Cache) publish(snap *Snapshot, gen uint64) {
	p := &published{snap: snap, at: c.clock.Now(), gen: gen}
	for {
		old := c.current.Load()
		if old != nil && old.gen > gen {
			return
		}
		if c.current.CompareAndSwap(old, p) {
			break
		}
	}
	entriesGauge.WithLabelValues(string(StatusPending)).Set(float64(len(snap.Pending)))
	entriesGauge.WithLabelValues(string(StatusEvaluating)).Set(float64(len(snap.Evaluating)))
	entriesGauge.WithLabelValues(string(StatusFinished)).Set(float64(len(snap.Finished)))
}

// Start refreshes the cache on every interval tick until Stop is called.
func (c *Cache) Start(ctx context.Context, interval time.Duration) error {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	if c.scheduler != nil {
		return fmt.Errorf("queue refresh is already scheduled")
	}

	s, err := gocron.NewScheduler(gocron.WithClock(c.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := c.Refresh(ctx); err != nil {
				c.logger.Error("scheduled queue refresh failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule queue refresh: %w", err)
	}
	s.Start()
	c.scheduler = s
	return nil
}

func (c *Cache) Stop() error {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	if c.scheduler == nil {
		return nil
	}
	err := c.scheduler.Shutdown()
	c.scheduler = nil
	return err
}
