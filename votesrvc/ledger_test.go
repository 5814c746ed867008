package votesrvc_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	back "github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/programme-lv/evalboard/registry"
	"github.com/programme-lv/evalboard/remotestore"
	"github.com/programme-lv/evalboard/srvcerror"
	"github.com/programme-lv/evalboard/votesrvc"
	"github.com/stretchr/testify/require"
)

const remoteKey = "votes/votes_data.jsonl"

type resolverMock struct {
	repoInfo func(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error)
}

func (m *resolverMock) RepoInfo(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error) {
	return m.repoInfo(ctx, modelID, revision)
}

func staticResolver(sha string) *resolverMock {
	return &resolverMock{
		repoInfo: func(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error) {
			return &registry.ModelInfo{ID: modelID, SHA: sha}, nil
		},
	}
}

type fixture struct {
	store     *remotestore.InMemStore
	localPath string
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		store:     remotestore.NewInMemStore(),
		localPath: filepath.Join(t.TempDir(), "votes", "votes_data.jsonl"),
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) ledger(t *testing.T, resolver votesrvc.RevisionResolver, opts ...votesrvc.Option) *votesrvc.Ledger {
	opts = append([]votesrvc.Option{
		votesrvc.WithClock(f.clock),
		votesrvc.WithRetryInterval(time.Millisecond),
	}, opts...)
	l := votesrvc.NewLedger(f.store, remoteKey, f.localPath, resolver, opts...)
	require.NoError(t, l.Initialize(context.Background()))
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func (f *fixture) localLines(t *testing.T) []string {
	content, err := os.ReadFile(f.localPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(content)), "\n")
}

func (f *fixture) remoteLines(t *testing.T) []string {
	content, err := f.store.Download(context.Background(), remoteKey)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(content)), "\n")
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var srvcErr *srvcerror.Error
	require.ErrorAs(t, err, &srvcErr)
	require.Equal(t, code, srvcErr.ErrorCode())
}

func TestAddVoteRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(t, staticResolver("abc123"))
	ctx := context.Background()

	vote, err := l.AddVote(ctx, "org/model", "abc123", "bob", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Equal(t, "2024-06-01T12:00:00Z", vote.Timestamp)

	_, err = l.AddVote(ctx, "org/model", "abc123", "bob", votesrvc.VoteUp)
	requireCode(t, err, votesrvc.ErrCodeAlreadyVoted)
	require.Len(t, f.localLines(t), 1)

	_, err = l.AddVote(ctx, "org/model", "ghijkl", "bob", votesrvc.VoteDown)
	require.NoError(t, err)

	stats := l.GetVotesForModel("org/model")
	require.Equal(t, 2, stats.TotalVotes)
	require.Equal(t, map[string]int{"abc123": 1, "ghijkl": 1}, stats.VotesByRevision)
	require.Len(t, l.GetVotesForVoter("bob"), 2)
	require.Empty(t, l.GetVotesForVoter("alice"))
	require.Len(t, f.localLines(t), 2)
}

func TestConcurrentDuplicateVotes(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(t, staticResolver("abc123"))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AddVote(context.Background(), "org/model", "abc123", "bob", votesrvc.VoteUp); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, ok.Load())
	require.Len(t, f.localLines(t), 1)
}

func TestAddVoteValidation(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(t, staticResolver("abc123"))
	ctx := context.Background()

	_, err := l.AddVote(ctx, "org/model", "abc123", "bob", votesrvc.VoteType("sideways"))
	requireCode(t, err, votesrvc.ErrCodeInvalidVoteType)

	_, err = l.AddVote(ctx, "", "abc123", "bob", votesrvc.VoteUp)
	requireCode(t, err, votesrvc.ErrCodeMissingVoteField)

	_, err = l.AddVote(ctx, "org/model", "abc123", "", votesrvc.VoteUp)
	requireCode(t, err, votesrvc.ErrCodeMissingVoteField)
}

func TestAddVoteResolvesRevision(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(t, staticResolver("abc123"))

	vote, err := l.AddVote(context.Background(), "org/model", "", "bob", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Equal(t, "abc123", vote.Revision)
}

func TestAddVoteFallsBackToMain(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	resolver := &resolverMock{
		repoInfo: func(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error) {
			calls.Add(1)
			return nil, registry.ErrUnavailable
		},
	}
	l := f.ledger(t, resolver)

	vote, err := l.AddVote(context.Background(), "org/model", "", "bob", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Equal(t, "main", vote.Revision)
	require.EqualValues(t, 3, calls.Load())
}

func TestAddVoteUnknownModel(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	resolver := &resolverMock{
		repoInfo: func(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error) {
			calls.Add(1)
			return nil, registry.ErrNotFound
		},
	}
	l := f.ledger(t, resolver)

	_, err := l.AddVote(context.Background(), "org/nope", "", "bob", votesrvc.VoteUp)
	requireCode(t, err, votesrvc.ErrCodeModelNotFound)
	require.EqualValues(t, 1, calls.Load())
}

func TestAddVoteResolvesRemoteCodeModel(t *testing.T) {
	f := newFixture(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/org/model/revision/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"org/model","sha":"abc123","config":{"auto_map":{"AutoModel":"modeling.Model"}}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	hub := registry.NewClient(srv.URL, registry.WithBackOff(func() back.BackOff {
		return &back.StopBackOff{}
	}))
	l := f.ledger(t, hub, votesrvc.WithRetryInterval(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	vote, err := l.AddVote(ctx, "org/model", "", "bob", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Equal(t, "abc123", vote.Revision)

	_, err = l.AddVote(ctx, "org/model", "abc123", "bob", votesrvc.VoteUp)
	requireCode(t, err, votesrvc.ErrCodeAlreadyVoted)
}

func TestAddVoteGatedModelFallsBackAtOnce(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	resolver := &resolverMock{
		repoInfo: func(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error) {
			calls.Add(1)
			return nil, registry.ErrGated
		},
	}
	l := f.ledger(t, resolver, votesrvc.WithRetryInterval(time.Hour))

	vote, err := l.AddVote(context.Background(), "org/gated", "", "bob", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Equal(t, "main", vote.Revision)
	require.EqualValues(t, 1, calls.Load())
}

func TestAddVoteBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	l := votesrvc.NewLedger(f.store, remoteKey, f.localPath, staticResolver("abc123"))

	_, err := l.AddVote(context.Background(), "org/model", "abc123", "bob", votesrvc.VoteUp)
	requireCode(t, err, votesrvc.ErrCodeLedgerNotReady)
}

const remoteLog = `{"model":"org/a","revision":"r1","username":"alice","timestamp":"2024-05-01T10:00:00Z","vote_type":"up"}
{"model":"org/a","revision":"r1","username":"carol","timestamp":"2024-05-02T10:00:00.000000","vote_type":"down"}
not json
{"model":"org/b","revision":"r2","username":"alice","timestamp":"2024-05-03T10:00:00Z","vote_type":"up"}
`

func TestInitializeMergesRemoteAndLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Upload(ctx, remoteKey, []byte(remoteLog), "application/x-ndjson"))
	require.NoError(t, os.MkdirAll(filepath.Dir(f.localPath), 0o755))
	local := `{"model":"org/a","revision":"r1","username":"alice","timestamp":"2024-05-01T10:00:00Z","vote_type":"up"}
{"model":"org/c","revision":"r3","username":"dave","timestamp":"2024-05-04T10:00:00Z","vote_type":"up"}
`
	require.NoError(t, os.WriteFile(f.localPath, []byte(local), 0o644))

	l := f.ledger(t, staticResolver("abc123"))

	// union of both sides
	require.Equal(t, 4, l.TotalVotes())
	require.Len(t, f.localLines(t), 4)
	require.Equal(t, 2, l.GetVotesForModel("org/a").TotalVotes)
	require.Equal(t, "2024-05-02T10:00:00Z", l.GetVotesForVoter("carol")[0].Timestamp)

	// the local-only vote was uploaded, remote lines were kept as they were
	remote := f.remoteLines(t)
	require.Len(t, remote, 5)
	require.Equal(t, "not json", remote[2])
	require.Contains(t, remote[4], `"username":"dave"`)
}

func TestReconcileIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.ledger(t, staticResolver("abc123"), votesrvc.WithBatchSize(100))

	for _, voter := range []string{"a", "b", "c"} {
		_, err := l.AddVote(ctx, "org/model", "abc123", voter, votesrvc.VoteUp)
		require.NoError(t, err)
	}
	require.Equal(t, 3, l.PendingUploads())

	// another process wrote a different set of votes to the remote ledger
	require.NoError(t, f.store.Upload(ctx, remoteKey, []byte(remoteLog), "application/x-ndjson"))

	require.NoError(t, l.Reconcile(ctx))
	require.Equal(t, 6, l.TotalVotes())
	require.Equal(t, 0, l.PendingUploads())
	require.Len(t, f.localLines(t), 6)
	require.Len(t, f.remoteLines(t), 7)

	// a second pass changes nothing
	require.NoError(t, l.Reconcile(ctx))
	require.Equal(t, 6, l.TotalVotes())
	require.Len(t, f.remoteLines(t), 7)
}

func TestBatchThresholdUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.ledger(t, staticResolver("abc123"), votesrvc.WithBatchSize(2))

	_, err := l.AddVote(ctx, "org/model", "abc123", "a", votesrvc.VoteUp)
	require.NoError(t, err)
	_, err = f.store.Download(ctx, remoteKey)
	require.ErrorIs(t, err, remotestore.ErrNotFound)

	_, err = l.AddVote(ctx, "org/model", "abc123", "b", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Len(t, f.remoteLines(t), 2)
	require.Equal(t, 0, l.PendingUploads())
}

func TestUploadFailureKeepsVotesQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.ledger(t, staticResolver("abc123"), votesrvc.WithBatchSize(1))

	f.store.FailUpload = errors.New("store unavailable")
	_, err := l.AddVote(ctx, "org/model", "abc123", "a", votesrvc.VoteUp)
	require.NoError(t, err)
	require.Equal(t, 1, l.PendingUploads())
	require.Error(t, l.Reconcile(ctx))

	f.store.FailUpload = nil
	require.NoError(t, l.Reconcile(ctx))
	require.Equal(t, 0, l.PendingUploads())
	require.Len(t, f.remoteLines(t), 1)
}

func TestInitializeTrustsLocalWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Upload(ctx, remoteKey, []byte(remoteLog), "application/x-ndjson"))
	f.store.FailDownload[remoteKey] = errors.New("timeout")
	require.NoError(t, os.MkdirAll(filepath.Dir(f.localPath), 0o755))
	require.NoError(t, os.WriteFile(f.localPath,
		[]byte(`{"model":"org/c","revision":"r3","username":"dave","timestamp":"2024-05-04T10:00:00Z","vote_type":"up"}`+"\n"), 0o644))

	l := f.ledger(t, staticResolver("abc123"))
	require.Equal(t, 1, l.TotalVotes())
}

func TestCloseUploadsQueuedVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := votesrvc.NewLedger(f.store, remoteKey, f.localPath, staticResolver("abc123"))
	require.NoError(t, l.Initialize(ctx))

	_, err := l.AddVote(ctx, "org/model", "abc123", "a", votesrvc.VoteUp)
	require.NoError(t, err)
	require.NoError(t, l.Close(ctx))

	content, err := f.store.Download(ctx, remoteKey)
	require.NoError(t, err)
	require.Equal(t, 1, bytes.Count(content, []byte("\n")))
}

func TestScheduledReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := votesrvc.NewLedger(f.store, remoteKey, f.localPath, staticResolver("abc123"),
		votesrvc.WithBatchSize(100))
	require.NoError(t, l.Initialize(ctx))
	t.Cleanup(func() { _ = l.Close(ctx) })

	_, err := l.AddVote(ctx, "org/model", "abc123", "a", votesrvc.VoteUp)
	require.NoError(t, err)

	require.NoError(t, l.Start(ctx, 20*time.Millisecond))
	require.Eventually(t, func() bool {
		return l.PendingUploads() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
