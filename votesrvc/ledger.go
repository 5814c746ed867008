// Package votesrvc keeps the vote ledger: an append-only local log of
// community votes mirrored to a line-delimited file in the remote store.
package votesrvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	back "github.com/cenkalti/backoff/v4"
	"github.com/emirpasic/gods/v2/queues"
	"github.com/emirpasic/gods/v2/queues/linkedlistqueue"
	"github.com/go-co-op/gocron/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/programme-lv/evalboard/registry"
	"github.com/programme-lv/evalboard/remotestore"
)

const (
	defaultBatchSize     = 10
	defaultRetryInterval = time.Second
	revisionAttempts     = 3
	fallbackRevision     = "main"
)

// RevisionResolver resolves a model's current revision to a commit hash.
type RevisionResolver interface {
	RepoInfo(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error)
}

type Ledger struct {
	store     remotestore.Store
	remoteKey string
	localPath string
	resolver  RevisionResolver
	clock     clockwork.Clock
	logger    *slog.Logger

	batchSize     int
	retryInterval time.Duration

	mu          sync.RWMutex
	initialized bool
	file        *os.File
	seen        map[voteKey]struct{}
	byModel     map[string][]Vote
	byVoter     map[string][]Vote
	ordered     []Vote // ledger order
	pending     queues.Queue[Vote]

	syncMu sync.Mutex // one reconciliation at a time

	schedMu   sync.Mutex
	scheduler gocron.Scheduler
}

type Option func(*Ledger)

func WithClock(clock clockwork.Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

func WithBatchSize(n int) Option {
	return func(l *Ledger) { l.batchSize = n }
}

// WithRetryInterval sets the base delay of revision resolution retries.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Ledger) { l.retryInterval = d }
}

func NewLedger(store remotestore.Store, remoteKey string, localPath string, resolver RevisionResolver, opts ...Option) *Ledger {
	l := &Ledger{
		store:         store,
		remoteKey:     remoteKey,
		localPath:     localPath,
		resolver:      resolver,
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default().With("module", "votes"),
		batchSize:     defaultBatchSize,
		retryInterval: defaultRetryInterval,
		seen:          make(map[voteKey]struct{}),
		byModel:       make(map[string][]Vote),
		byVoter:       make(map[string][]Vote),
		pending:       linkedlistqueue.New[Vote](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize loads the local replica and reconciles it with the remote
// ledger. A remote failure is logged and the local replica is trusted.
func (l *Ledger) Initialize(ctx context.Context) error {
	l.mu.Lock()
	if l.initialized {
		l.mu.Unlock()
		return l.Reconcile(ctx)
	}

	if err := os.MkdirAll(filepath.Dir(l.localPath), 0o755); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to create votes directory: %w", err)
	}
	content, err := os.ReadFile(l.localPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		l.mu.Unlock()
		return fmt.Errorf("failed to read local votes: %w", err)
	}
	votes, skipped := parseVotes(content)
	for _, v := range votes {
		l.index(v)
	}
	if skipped > 0 {
		l.logger.Warn("skipped malformed local votes", "count", skipped)
	}

	f, err := os.OpenFile(l.localPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to open local votes: %w", err)
	}
	l.file = f
	l.initialized = true
	localCount := len(l.ordered)
	l.mu.Unlock()

	l.logger.Info("loaded local votes", "votes", localCount, "path", l.localPath)
	votesGauge.Set(float64(localCount))

	if err := l.Reconcile(ctx); err != nil {
		l.logger.Warn("initial vote reconciliation failed, trusting local votes", "error", err)
	}
	return nil
}

// index adds a vote to the in-memory structures. Caller holds mu.
func (l *Ledger) index(v Vote) bool {
	k := v.key()
	if _, ok := l.seen[k]; ok {
		return false
	}
	l.seen[k] = struct{}{}
	l.byModel[v.Model] = append(l.byModel[v.Model], v)
	l.byVoter[v.Username] = append(l.byVoter[v.Username], v)
	l.ordered = append(l.ordered, v)
	return true
}

// appendLocal writes lines to the local log and syncs them to disk.
// Caller holds mu.
func (l *Ledger) appendLocal(votes ...Vote) error {
	var buf []byte
	for _, v := range votes {
		line, err := marshalLine(v)
		if err != nil {
			return err
		}
		buf = append(buf, line...)
	}
	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("failed to append votes: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync votes: %w", err)
	}
	return nil
}

// AddVote records a vote. An empty revision is resolved to the model's
// current commit. The vote is durable locally when AddVote returns; the
// upload to the remote ledger happens in batches.
func (l *Ledger) AddVote(ctx context.Context, modelID string, revision string, voter string, voteType VoteType) (Vote, error) {
	if modelID == "" {
		return Vote{}, ErrMissingVoteField("model")
	}
	if voter == "" {
		return Vote{}, ErrMissingVoteField("username")
	}
	if voteType != VoteUp && voteType != VoteDown {
		return Vote{}, ErrInvalidVoteType(string(voteType))
	}

	if revision == "" {
		var err error
		revision, err = l.resolveRevision(ctx, modelID)
		if err != nil {
			return Vote{}, err
		}
	}

	vote := Vote{
		Model:     modelID,
		Revision:  revision,
		Username:  voter,
		Timestamp: l.clock.Now().UTC().Format(timestampLayout),
		VoteType:  voteType,
	}

	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return Vote{}, ErrLedgerNotReady()
	}
	if _, ok := l.seen[vote.key()]; ok {
		l.mu.Unlock()
		return Vote{}, ErrAlreadyVoted(modelID, revision)
	}
	if err := l.appendLocal(vote); err != nil {
		l.mu.Unlock()
		return Vote{}, ErrLedgerWrite().SetDebug(err)
	}
	l.index(vote)
	l.pending.Enqueue(vote)
	queued := l.pending.Size()
	total := len(l.ordered)
	l.mu.Unlock()

	votesAdded.WithLabelValues(string(voteType)).Inc()
	votesGauge.Set(float64(total))
	pendingGauge.Set(float64(queued))
	l.logger.Info("vote recorded",
		"model", modelID,
		"revision", revision,
		"voter", voter,
		"vote_type", voteType,
		"queued", queued)

	if queued >= l.batchSize {
		l.logger.Info("upload batch size reached, reconciling", "batch_size", l.batchSize)
		if err := l.Reconcile(ctx); err != nil {
			l.logger.Error("failed to upload votes, keeping them queued", "error", err)
		}
	}
	return vote, nil
}

// resolveRevision asks the registry for the current commit, retrying with
// linear backoff, and falls back to the default branch.
func (l *Ledger) resolveRevision(ctx context.Context, modelID string) (string, error) {
	var sha string
	op := func() error {
		info, err := l.resolver.RepoInfo(ctx, modelID, fallbackRevision)
		if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrGated) {
			return back.Permanent(err)
		}
		if err != nil {
			l.logger.Warn("failed to resolve model revision", "model", modelID, "error", err)
			return err
		}
		sha = info.SHA
		return nil
	}

	b := newLinearBackOff(l.retryInterval, revisionAttempts-1)
	err := back.Retry(op, back.WithContext(b, ctx))
	switch {
	case err == nil:
		return sha, nil
	case errors.Is(err, registry.ErrNotFound):
		return "", ErrModelNotFound(modelID)
	case ctx.Err() != nil:
		return "", ctx.Err()
	}
	l.logger.Warn("using fallback revision", "model", modelID, "revision", fallbackRevision)
	return fallbackRevision, nil
}

func (l *Ledger) GetVotesForModel(modelID string) VoteStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	votes := l.byModel[modelID]
	stats := VoteStats{
		TotalVotes:      len(votes),
		VotesByRevision: make(map[string]int),
		Votes:           make([]Vote, len(votes)),
	}
	copy(stats.Votes, votes)
	for _, v := range votes {
		stats.VotesByRevision[v.Revision]++
	}
	return stats
}

func (l *Ledger) GetVotesForVoter(voter string) []Vote {
	l.mu.RLock()
	defer l.mu.RUnlock()

	res := make([]Vote, len(l.byVoter[voter]))
	copy(res, l.byVoter[voter])
	return res
}

func (l *Ledger) TotalVotes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ordered)
}

func (l *Ledger) PendingUploads() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending.Size()
}

// Start reconciles with the remote ledger on every interval tick.
func (l *Ledger) Start(ctx context.Context, interval time.Duration) error {
	l.schedMu.Lock()
	defer l.schedMu.Unlock()
	if l.scheduler != nil {
		return fmt.Errorf("vote reconciliation is already scheduled")
	}

	s, err := gocron.NewScheduler(gocron.WithClock(l.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := l.Reconcile(ctx); err != nil {
				l.logger.Error("scheduled vote reconciliation failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule vote reconciliation: %w", err)
	}
	s.Start()
	l.scheduler = s
	return nil
}

// Close stops the scheduler, uploads queued votes and closes the local log.
func (l *Ledger) Close(ctx context.Context) error {
	var result *multierror.Error

	l.schedMu.Lock()
	if l.scheduler != nil {
		result = multierror.Append(result, l.scheduler.Shutdown())
		l.scheduler = nil
	}
	l.schedMu.Unlock()

	if l.PendingUploads() > 0 {
		result = multierror.Append(result, l.Reconcile(ctx))
	}

	l.mu.Lock()
	if l.file != nil {
		result = multierror.Append(result, l.file.Close())
		l.file = nil
	}
	l.initialized = false
	l.mu.Unlock()
	return result.ErrorOrNil()
}
