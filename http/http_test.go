package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programme-lv/evalboard/auth"
	"github.com/programme-lv/evalboard/evalqueue"
	evalhttp "github.com/programme-lv/evalboard/http"
	"github.com/programme-lv/evalboard/submsrvc"
	"github.com/programme-lv/evalboard/votesrvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtKey = []byte("test")

type submSrvcMock struct {
	submit func(ctx context.Context, req submsrvc.Request) (*submsrvc.SubmissionRecord, error)
	status func(ctx context.Context, modelID string) (*submsrvc.ModelStatus, error)
	queue  func(ctx context.Context) (*evalqueue.Snapshot, error)
}

func (m *submSrvcMock) Submit(ctx context.Context, req submsrvc.Request) (*submsrvc.SubmissionRecord, error) {
	return m.submit(ctx, req)
}

func (m *submSrvcMock) Status(ctx context.Context, modelID string) (*submsrvc.ModelStatus, error) {
	return m.status(ctx, modelID)
}

func (m *submSrvcMock) Queue(ctx context.Context) (*evalqueue.Snapshot, error) {
	return m.queue(ctx)
}

type voteSrvcMock struct {
	addVote          func(ctx context.Context, modelID string, revision string, voter string, voteType votesrvc.VoteType) (votesrvc.Vote, error)
	getVotesForModel func(modelID string) votesrvc.VoteStats
	getVotesForVoter func(voter string) []votesrvc.Vote
}

func (m *voteSrvcMock) AddVote(ctx context.Context, modelID string, revision string, voter string, voteType votesrvc.VoteType) (votesrvc.Vote, error) {
	return m.addVote(ctx, modelID, revision, voter, voteType)
}

func (m *voteSrvcMock) GetVotesForModel(modelID string) votesrvc.VoteStats {
	return m.getVotesForModel(modelID)
}

func (m *voteSrvcMock) GetVotesForVoter(voter string) []votesrvc.Vote {
	return m.getVotesForVoter(voter)
}

type response struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	ErrCode string          `json:"code"`
	ErrMsg  string          `json:"message"`
}

func do(t *testing.T, h http.Handler, method, path string, body any, username string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		token, err := auth.GenerateJWT(username, nil, time.Hour, jwtKey)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp response
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func newServer(subm *submSrvcMock, votes *voteSrvcMock) http.Handler {
	return evalhttp.NewHttpServer(subm, votes, evalhttp.Options{JwtKey: jwtKey, Env: "test"}).Handler()
}

func TestSubmitModelRequiresLogin(t *testing.T) {
	h := newServer(&submSrvcMock{}, &voteSrvcMock{})

	w, resp := do(t, h, http.MethodPost, "/models/submit", map[string]any{"model_id": "org/model"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.ErrCodeJwtTokenMissing, resp.ErrCode)
}

func TestSubmitModel(t *testing.T) {
	var got submsrvc.Request
	subm := &submSrvcMock{
		submit: func(ctx context.Context, req submsrvc.Request) (*submsrvc.SubmissionRecord, error) {
			got = req
			return &submsrvc.SubmissionRecord{Model: req.ModelID, Revision: "abc123", Precision: req.Precision}, nil
		},
	}
	h := newServer(subm, &voteSrvcMock{})

	w, resp := do(t, h, http.MethodPost, "/models/submit", map[string]any{
		"model_id":          "org/model",
		"precision":         "float16",
		"model_type":        "fine-tuned",
		"use_chat_template": true,
		"submitter":         "mallory",
	}, "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "success", resp.Status)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// the submitter comes from the token, defaults are filled in
	assert.Equal(t, "alice", got.Submitter)
	assert.Equal(t, "main", got.Revision)
	assert.Equal(t, submsrvc.WeightTypeOriginal, got.WeightType)
	require.NotNil(t, got.UseChatTemplate)
	assert.True(t, *got.UseChatTemplate)

	var result evalhttp.SubmissionResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, "abc123", result.Revision)
}

func TestSubmitModelErrors(t *testing.T) {
	subm := &submSrvcMock{
		submit: func(ctx context.Context, req submsrvc.Request) (*submsrvc.SubmissionRecord, error) {
			return nil, submsrvc.ErrDuplicateSubmission(req.ModelID, "abc123", "pending")
		},
	}
	h := newServer(subm, &voteSrvcMock{})

	w, resp := do(t, h, http.MethodPost, "/models/submit", map[string]any{"model_id": "org/model"}, "alice")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, submsrvc.ErrCodeDuplicateSubmission, resp.ErrCode)
	assert.Contains(t, resp.ErrMsg, "org/model")

	req := httptest.NewRequest(http.MethodPost, "/models/submit", bytes.NewBufferString("{"))
	token, err := auth.GenerateJWT("alice", nil, time.Hour, jwtKey)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), evalhttp.ErrCodeInvalidRequestBody)
}

func TestModelsStatus(t *testing.T) {
	submitted := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	subm := &submSrvcMock{
		queue: func(ctx context.Context) (*evalqueue.Snapshot, error) {
			return &evalqueue.Snapshot{
				Pending:    []evalqueue.Entry{{Name: "org/a", Revision: "r1", SubmittedTime: submitted, Status: evalqueue.StatusPending}},
				Evaluating: []evalqueue.Entry{},
				Finished:   []evalqueue.Entry{{Name: "org/b", Revision: "r2", SubmittedTime: submitted, Status: evalqueue.StatusFinished}},
			}, nil
		},
		status: func(ctx context.Context, modelID string) (*submsrvc.ModelStatus, error) {
			return &submsrvc.ModelStatus{Status: "pending", Revision: modelID}, nil
		},
	}
	h := newServer(subm, &voteSrvcMock{})

	w, resp := do(t, h, http.MethodGet, "/models/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var view evalhttp.QueueView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	require.Len(t, view.Pending, 1)
	require.Len(t, view.Finished, 1)
	require.Empty(t, view.Evaluating)
	assert.Equal(t, "2024-06-01T10:00:00Z", view.Pending[0].SubmittedTime)

	w, resp = do(t, h, http.MethodGet, "/models/pending", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var pending []evalhttp.QueueEntry
	require.NoError(t, json.Unmarshal(resp.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "org/a", pending[0].Name)

	w, resp = do(t, h, http.MethodGet, "/models/org/a/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status submsrvc.ModelStatus
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "org/a", status.Revision)
}

func TestVoteReadsAreCachedAndInvalidated(t *testing.T) {
	var modelReads atomic.Int32
	var votes []votesrvc.Vote
	voteSrvc := &voteSrvcMock{
		addVote: func(ctx context.Context, modelID string, revision string, voter string, voteType votesrvc.VoteType) (votesrvc.Vote, error) {
			if voteType != votesrvc.VoteUp && voteType != votesrvc.VoteDown {
				return votesrvc.Vote{}, votesrvc.ErrInvalidVoteType(string(voteType))
			}
			v := votesrvc.Vote{Model: modelID, Revision: "abc123", Username: voter, VoteType: voteType}
			votes = append(votes, v)
			return v, nil
		},
		getVotesForModel: func(modelID string) votesrvc.VoteStats {
			modelReads.Add(1)
			return votesrvc.VoteStats{TotalVotes: len(votes), Votes: votes}
		},
		getVotesForVoter: func(voter string) []votesrvc.Vote {
			return votes
		},
	}
	h := newServer(&submSrvcMock{}, voteSrvc)

	readTotal := func() int {
		w, resp := do(t, h, http.MethodGet, "/votes/model/org/model", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var stats votesrvc.VoteStats
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		return stats.TotalVotes
	}

	require.Equal(t, 0, readTotal())
	require.Equal(t, 0, readTotal())
	require.Equal(t, int32(1), modelReads.Load())

	w, _ := do(t, h, http.MethodPost, "/votes/org/model?vote_type=up", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := do(t, h, http.MethodPost, "/votes/org/model?vote_type=sideways", nil, "alice")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, votesrvc.ErrCodeInvalidVoteType, resp.ErrCode)

	w, _ = do(t, h, http.MethodPost, "/votes/org/model?vote_type=up", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, 1, readTotal())
	require.Equal(t, int32(2), modelReads.Load())

	w, resp = do(t, h, http.MethodGet, "/votes/user/alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var userVotes []votesrvc.Vote
	require.NoError(t, json.Unmarshal(resp.Data, &userVotes))
	require.Len(t, userVotes, 1)
}

func TestVoteReadStartedBeforeVoteIsNotCached(t *testing.T) {
	var (
		mu      sync.Mutex
		total   int
		reads   atomic.Int32
		started = make(chan struct{})
		release = make(chan struct{})
	)
	voteSrvc := &voteSrvcMock{
		addVote: func(ctx context.Context, modelID string, revision string, voter string, voteType votesrvc.VoteType) (votesrvc.Vote, error) {
			mu.Lock()
			total++
			mu.Unlock()
			return votesrvc.Vote{Model: modelID, Revision: "abc123", Username: voter, VoteType: voteType}, nil
		},
		getVotesForModel: func(modelID string) votesrvc.VoteStats {
			mu.Lock()
			n := total
			mu.Unlock()
			if reads.Add(1) == 1 {
				close(started)
				<-release
			}
			return votesrvc.VoteStats{TotalVotes: n}
		},
	}
	h := newServer(&submSrvcMock{}, voteSrvc)

	slowRead := make(chan int)
	go func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/votes/model/org/model", nil))
		var resp response
		var stats votesrvc.VoteStats
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		_ = json.Unmarshal(resp.Data, &stats)
		slowRead <- stats.TotalVotes
	}()
	<-started

	w, _ := do(t, h, http.MethodPost, "/votes/org/model?vote_type=up", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	close(release)
	require.Equal(t, 0, <-slowRead)

	w, resp := do(t, h, http.MethodGet, "/votes/model/org/model", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats votesrvc.VoteStats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	require.Equal(t, 1, stats.TotalVotes)
	require.Equal(t, int32(2), reads.Load())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newServer(&submSrvcMock{}, &voteSrvcMock{})

	w, resp := do(t, h, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "success", resp.Status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "evalboard_http_request_duration_seconds")
}
