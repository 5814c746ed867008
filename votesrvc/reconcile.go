package votesrvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/programme-lv/evalboard/remotestore"
)

const (
	reconcileAttempts = 3
	ledgerMediaType   = "application/x-ndjson"
)

// Reconcile merges the local and remote ledgers. Remote votes missing
// locally are appended to the local log; local votes missing remotely are
// uploaded. Neither side ever loses a vote.
func (l *Ledger) Reconcile(ctx context.Context) error {
	l.syncMu.Lock()
	defer l.syncMu.Unlock()

	var err error
	for attempt := 1; attempt <= reconcileAttempts; attempt++ {
		var retry bool
		retry, err = l.reconcileOnce(ctx)
		if err == nil || !retry {
			break
		}
		l.logger.Warn("remote ledger changed during reconciliation, retrying", "attempt", attempt)
	}
	if err != nil {
		reconcileFailures.Inc()
	}
	return err
}

var errRemoteChanged = errors.New("remote ledger changed concurrently")

func (l *Ledger) reconcileOnce(ctx context.Context) (retry bool, err error) {
	before, remoteContent, err := l.downloadRemote(ctx)
	if err != nil {
		return false, err
	}
	remoteVotes, skipped := parseVotes(remoteContent)
	if skipped > 0 {
		l.logger.Warn("skipped malformed remote votes", "count", skipped)
	}

	remoteSet := make(map[voteKey]struct{}, len(remoteVotes))
	for _, v := range remoteVotes {
		remoteSet[v.key()] = struct{}{}
	}

	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return false, ErrLedgerNotReady()
	}

	var fetched []Vote
	for _, v := range remoteVotes {
		if _, ok := l.seen[v.key()]; ok {
			continue
		}
		fetched = append(fetched, v)
	}
	fetched = dedupe(fetched)
	if len(fetched) > 0 {
		if err := l.appendLocal(fetched...); err != nil {
			l.mu.Unlock()
			return false, err
		}
		for _, v := range fetched {
			l.index(v)
		}
	}

	var missing []Vote
	for _, v := range l.ordered {
		if _, ok := remoteSet[v.key()]; !ok {
			missing = append(missing, v)
		}
	}
	uploadedPending := l.pending.Size()
	total := len(l.ordered)
	l.mu.Unlock()

	votesGauge.Set(float64(total))
	if len(fetched) > 0 {
		l.logger.Info("fetched remote votes", "count", len(fetched))
	}

	if len(missing) > 0 {
		if err := l.uploadMerged(ctx, before, remoteContent, missing); err != nil {
			return errors.Is(err, errRemoteChanged), err
		}
		l.logger.Info("uploaded votes", "count", len(missing))
	}

	l.mu.Lock()
	for i := 0; i < uploadedPending; i++ {
		l.pending.Dequeue()
	}
	queued := l.pending.Size()
	l.mu.Unlock()
	pendingGauge.Set(float64(queued))

	l.logger.Info("votes reconciled",
		"local", total,
		"remote", len(remoteVotes)+len(missing),
		"queued", queued)
	return false, nil
}

// downloadRemote returns the remote ledger with its revision. A missing
// remote ledger is empty.
func (l *Ledger) downloadRemote(ctx context.Context) (*remotestore.ObjectRevision, []byte, error) {
	rev, err := l.store.Revision(ctx, l.remoteKey)
	if errors.Is(err, remotestore.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat remote votes: %w", err)
	}
	content, err := l.store.Download(ctx, l.remoteKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download remote votes: %w", err)
	}
	return &rev, content, nil
}

func (l *Ledger) uploadMerged(ctx context.Context, before *remotestore.ObjectRevision, remoteContent []byte, missing []Vote) error {
	merged := make([]byte, 0, len(remoteContent)+len(missing)*128)
	merged = append(merged, remoteContent...)
	if len(merged) > 0 && merged[len(merged)-1] != '\n' {
		merged = append(merged, '\n')
	}
	for _, v := range missing {
		line, err := marshalLine(v)
		if err != nil {
			return err
		}
		merged = append(merged, line...)
	}

	// the store has no conditional put; narrow the race window instead
	now, err := l.store.Revision(ctx, l.remoteKey)
	switch {
	case errors.Is(err, remotestore.ErrNotFound):
		if before != nil {
			return errRemoteChanged
		}
	case err != nil:
		return fmt.Errorf("failed to stat remote votes: %w", err)
	case before == nil || now.ETag != before.ETag:
		return errRemoteChanged
	}

	if err := l.store.Upload(ctx, l.remoteKey, merged, ledgerMediaType); err != nil {
		return fmt.Errorf("failed to upload votes: %w", err)
	}
	return nil
}

func dedupe(votes []Vote) []Vote {
	seen := make(map[voteKey]struct{}, len(votes))
	res := votes[:0]
	for _, v := range votes {
		if _, ok := seen[v.key()]; ok {
			continue
		}
		seen[v.key()] = struct{}{}
		res = append(res, v)
	}
	return res
}
