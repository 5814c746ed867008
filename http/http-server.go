package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/evalboard/auth"
	"github.com/programme-lv/evalboard/evalqueue"
	"github.com/programme-lv/evalboard/httpjson"
	"github.com/programme-lv/evalboard/submsrvc"
	"github.com/programme-lv/evalboard/votesrvc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"
)

type SubmSrvc interface {
	Submit(ctx context.Context, req submsrvc.Request) (*submsrvc.SubmissionRecord, error)
	Status(ctx context.Context, modelID string) (*submsrvc.ModelStatus, error)
	Queue(ctx context.Context) (*evalqueue.Snapshot, error)
}

type VoteSrvc interface {
	AddVote(ctx context.Context, modelID string, revision string, voter string, voteType votesrvc.VoteType) (votesrvc.Vote, error)
	GetVotesForModel(modelID string) votesrvc.VoteStats
	GetVotesForVoter(voter string) []votesrvc.Vote
}

type HttpServer struct {
	submSrvc SubmSrvc
	voteSrvc VoteSrvc
	router   *chi.Mux
	server   *http.Server

	// vote reads are cached briefly and invalidated on new votes
	voteCache *cache.Cache
	sfGroup   singleflight.Group
	genMu     sync.Mutex
	voteGens  map[string]uint64

	now func() time.Time
}

type Options struct {
	JwtKey         []byte
	AllowedOrigins []string
	Env            string
}

func NewHttpServer(submSrvc SubmSrvc, voteSrvc VoteSrvc, opts Options) *HttpServer {
	router := chi.NewRouter()

	logger := httplog.NewLogger("evalboard", httplog.Options{
		LogLevel:         slog.LevelInfo,
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "message",
		Tags: map[string]string{
			"env": opts.Env,
		},
	})

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(requestIDMiddleware)
	router.Use(httplog.RequestLogger(logger))
	router.Use(statsMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           3000,
	}))
	router.Use(auth.GetJwtAuthMiddleware(opts.JwtKey))

	server := &HttpServer{
		submSrvc:  submSrvc,
		voteSrvc:  voteSrvc,
		router:    router,
		voteCache: cache.New(60*time.Second, 5*time.Minute),
		voteGens:  make(map[string]uint64),
		now:       time.Now,
	}

	server.routes()

	return server
}

func (httpserver *HttpServer) routes() {
	r := httpserver.router
	r.Get("/health", httpserver.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/models", func(r chi.Router) {
		r.Post("/submit", httpserver.submitModel)
		r.Get("/status", httpserver.getModelsStatus)
		r.Get("/pending", httpserver.getPendingModels)
		r.Get("/{org}/{model}/status", httpserver.getModelStatus)
	})

	r.Route("/votes", func(r chi.Router) {
		r.Post("/{org}/{model}", httpserver.addVote)
		r.Get("/model/{org}/{model}", httpserver.getModelVotes)
		r.Get("/user/{username}", httpserver.getUserVotes)
	})
}

func (httpserver *HttpServer) Handler() http.Handler {
	return httpserver.router
}

func (httpserver *HttpServer) Start(address string) error {
	httpserver.server = &http.Server{
		Addr:              address,
		Handler:           httpserver.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := httpserver.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (httpserver *HttpServer) Shutdown(ctx context.Context) error {
	if httpserver.server == nil {
		return nil
	}
	return httpserver.server.Shutdown(ctx)
}

func (httpserver *HttpServer) health(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteSuccessMsg(w, "ok")
}
