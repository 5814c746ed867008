package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/programme-lv/evalboard/conf"
	"github.com/programme-lv/evalboard/evalqueue"
	"github.com/programme-lv/evalboard/http"
	"github.com/programme-lv/evalboard/jobqueue"
	"github.com/programme-lv/evalboard/registry"
	"github.com/programme-lv/evalboard/remotestore"
	"github.com/programme-lv/evalboard/submsrvc"
	"github.com/programme-lv/evalboard/votesrvc"
)

const claimLease = 2 * time.Minute

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		return err
	}
	policy, err := conf.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	awsCfg, err := remotestore.LoadAWSConfig(ctx, cfg.StoreRegion)
	if err != nil {
		return err
	}
	requests := remotestore.NewS3Store(awsCfg, cfg.RequestsBucket, cfg.RemoteCallTimeout)
	votesStore := remotestore.NewS3Store(awsCfg, cfg.VotesBucket, cfg.RemoteCallTimeout)

	hubToken, err := conf.HubToken(ctx)
	if err != nil {
		return err
	}
	hub := registry.NewClient(cfg.HubEndpoint,
		registry.WithToken(hubToken),
		registry.WithCallTimeout(cfg.RemoteCallTimeout))

	clock := clockwork.NewRealClock()

	queue := evalqueue.NewCache(requests, cfg.RequestsPrefix,
		evalqueue.WithTTL(cfg.CacheTTL),
		evalqueue.WithFetchTimeout(cfg.RemoteCallTimeout),
		evalqueue.WithClock(clock))
	if _, err := queue.Refresh(ctx); err != nil {
		// the first read retries, the server can start without a snapshot
		slog.Warn("initial queue refresh failed", "error", err)
	}

	ledger := votesrvc.NewLedger(votesStore, cfg.VotesKey, cfg.VotesLocalPath, hub,
		votesrvc.WithClock(clock))
	if err := ledger.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize vote ledger: %w", err)
	}

	var claims submsrvc.Claims = submsrvc.NewInMemClaims()
	if cfg.SubmClaimsTable != "" {
		ddbClaims := submsrvc.NewDynamoClaims(dynamodb.NewFromConfig(awsCfg), cfg.SubmClaimsTable, claimLease)
		claims = submsrvc.ChainClaims(claims, ddbClaims)
	}

	var jobs jobqueue.Publisher = jobqueue.NopPublisher{}
	if cfg.EvalJobsSqsUrl != "" {
		jobs = jobqueue.NewSqsPublisher(sqs.NewFromConfig(awsCfg), cfg.EvalJobsSqsUrl)
	}

	submSrvc := submsrvc.NewSubmissionSrvc(submsrvc.Deps{
		Validator: submsrvc.NewValidator(hub, queue, policy, clock),
		Store:     requests,
		Prefix:    cfg.RequestsPrefix,
		Queue:     queue,
		Claims:    claims,
		Jobs:      jobs,
		Votes:     ledger,
		Clock:     clock,
	})

	if err := queue.Start(ctx, cfg.QueueRefreshInterval); err != nil {
		return err
	}
	if err := ledger.Start(ctx, cfg.VoteSyncInterval); err != nil {
		return err
	}

	httpServer := http.NewHttpServer(submSrvc, ledger, http.Options{
		JwtKey:         cfg.JwtKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Env:            cfg.Env,
	})

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "address", cfg.HttpAddr)
		serveErr <- httpServer.Start(cfg.HttpAddr)
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down http server", "error", err)
	}
	if err := queue.Stop(); err != nil {
		slog.Error("failed to stop queue refresh", "error", err)
	}
	if err := ledger.Close(shutdownCtx); err != nil {
		slog.Error("failed to flush votes", "error", err)
	}
	return err
}
