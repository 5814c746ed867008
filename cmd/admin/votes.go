package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/programme-lv/evalboard/conf"
	"github.com/programme-lv/evalboard/registry"
	"github.com/programme-lv/evalboard/remotestore"
	"github.com/programme-lv/evalboard/votesrvc"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// openLedger opens a ledger backed by localPath. Without one, a fresh
// file in a temporary directory is used so the command never appends to
// the file of a running server.
func openLedger(ctx context.Context, localPath string) (*votesrvc.Ledger, func(), error) {
	cfg, err := conf.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	localPath, cleanup, err := ledgerPath(localPath)
	if err != nil {
		return nil, nil, err
	}

	awsCfg, err := remotestore.LoadAWSConfig(ctx, cfg.StoreRegion)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	store := remotestore.NewS3Store(awsCfg, cfg.VotesBucket, cfg.RemoteCallTimeout)
	hubToken, err := conf.HubToken(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	hub := registry.NewClient(cfg.HubEndpoint, registry.WithToken(hubToken))

	ledger := votesrvc.NewLedger(store, cfg.VotesKey, localPath, hub)
	if err := ledger.Initialize(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize vote ledger: %w", err)
	}
	log.Debug().Str("local_path", localPath).Msg("vote ledger opened")
	return ledger, cleanup, nil
}

func ledgerPath(localPath string) (string, func(), error) {
	if localPath != "" {
		return localPath, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "evalboard-votes-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return filepath.Join(dir, "votes_data.jsonl"), func() { _ = os.RemoveAll(dir) }, nil
}

func newVotesCmd() *cobra.Command {
	var localPath string
	var votesCmd = &cobra.Command{
		Use:   "votes",
		Short: "Inspect and synchronize the vote ledger",
		Long: `Inspect and synchronize the vote ledger.

By default the commands work on a temporary local ledger file. Pass
--local-path to merge a server's local ledger into the remote one, but
only while that server is stopped: a running server is the single
writer of its local file.`,
	}
	votesCmd.PersistentFlags().StringVar(&localPath, "local-path", "", "local vote ledger file (default: a temporary file)")

	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Merge the local vote ledger with the remote one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, cleanup, err := openLedger(cmd.Context(), localPath)
			if err != nil {
				return err
			}
			defer cleanup()
			defer ledger.Close(cmd.Context())

			if err := ledger.Reconcile(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reconcile votes: %w", err)
			}
			log.Info().
				Int("total", ledger.TotalVotes()).
				Int("pending_uploads", ledger.PendingUploads()).
				Msg("votes synchronized")
			return nil
		},
	}

	var statsCmd = &cobra.Command{
		Use:   "stats <model>",
		Short: "Print the votes of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, cleanup, err := openLedger(cmd.Context(), localPath)
			if err != nil {
				return err
			}
			defer cleanup()
			defer ledger.Close(cmd.Context())

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ledger.GetVotesForModel(args[0]))
		},
	}

	votesCmd.AddCommand(syncCmd)
	votesCmd.AddCommand(statsCmd)
	return votesCmd
}
