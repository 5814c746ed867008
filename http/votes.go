package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/evalboard/auth"
	"github.com/programme-lv/evalboard/httpjson"
	"github.com/programme-lv/evalboard/logger"
	"github.com/programme-lv/evalboard/votesrvc"
)

const (
	modelVotesCacheKeyPrefix = "model_votes:"
	userVotesCacheKeyPrefix  = "user_votes:"
)

func modelVotesCacheKey(modelID string) string {
	return fmt.Sprintf("%s%s", modelVotesCacheKeyPrefix, modelID)
}

func userVotesCacheKey(username string) string {
	return fmt.Sprintf("%s%s", userVotesCacheKeyPrefix, username)
}

func (httpserver *HttpServer) addVote(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httpjson.HandleError(log, w, auth.ErrJwtTokenMissing())
		return
	}

	modelID := chi.URLParam(r, "org") + "/" + chi.URLParam(r, "model")
	voteType := votesrvc.VoteType(r.URL.Query().Get("vote_type"))
	revision := r.URL.Query().Get("revision")

	vote, err := httpserver.voteSrvc.AddVote(r.Context(), modelID, revision, claims.Username, voteType)
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}

	httpserver.invalidateVotes(modelVotesCacheKey(modelID), userVotesCacheKey(claims.Username))
	log.Info("vote added", "model", modelID, "revision", vote.Revision, "vote_type", vote.VoteType)

	httpjson.WriteSuccessJson(w, vote)
}

func (httpserver *HttpServer) getModelVotes(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "org") + "/" + chi.URLParam(r, "model")

	stats := httpserver.cachedRead(modelVotesCacheKey(modelID), func() any {
		return httpserver.voteSrvc.GetVotesForModel(modelID)
	})

	httpjson.WriteSuccessJson(w, stats)
}

func (httpserver *HttpServer) getUserVotes(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	votes := httpserver.cachedRead(userVotesCacheKey(username), func() any {
		return httpserver.voteSrvc.GetVotesForVoter(username)
	})

	httpjson.WriteSuccessJson(w, votes)
}

// cachedRead serves a cached value, computing it at most once per key
// and generation across concurrent requests. A value loaded before an
// invalidation is returned to its callers but never cached.
func (httpserver *HttpServer) cachedRead(key string, load func() any) any {
	gen := httpserver.voteCacheGen(key)
	if cached, found := httpserver.voteCache.Get(key); found {
		return cached
	}

	result, _, _ := httpserver.sfGroup.Do(fmt.Sprintf("%s#%d", key, gen), func() (interface{}, error) {
		value := load()

		httpserver.genMu.Lock()
		defer httpserver.genMu.Unlock()
		if httpserver.voteGens[key] == gen {
			httpserver.voteCache.Set(key, value, 0)
		}
		return value, nil
	})
	return result
}

func (httpserver *HttpServer) voteCacheGen(key string) uint64 {
	httpserver.genMu.Lock()
	defer httpserver.genMu.Unlock()
	return httpserver.voteGens[key]
}

func (httpserver *HttpServer) invalidateVotes(keys ...string) {
	httpserver.genMu.Lock()
	defer httpserver.genMu.Unlock()
	for _, key := range keys {
		httpserver.voteGens[key]++
		httpserver.voteCache.Delete(key)
	}
}
