package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/programme-lv/evalboard/conf"
	"github.com/programme-lv/evalboard/evalqueue"
	"github.com/programme-lv/evalboard/remotestore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func loadQueue(ctx context.Context, cfg *conf.Config) (*evalqueue.Snapshot, error) {
	awsCfg, err := remotestore.LoadAWSConfig(ctx, cfg.StoreRegion)
	if err != nil {
		return nil, err
	}
	store := remotestore.NewS3Store(awsCfg, cfg.RequestsBucket, cfg.RemoteCallTimeout)
	cache := evalqueue.NewCache(store, cfg.RequestsPrefix, evalqueue.WithFetchTimeout(cfg.RemoteCallTimeout))
	return cache.Refresh(ctx)
}

func newQueueCmd() *cobra.Command {
	var queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Inspect the evaluation queue",
	}

	var status string
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List submission requests by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.LoadFromEnv()
			if err != nil {
				return err
			}
			snap, err := loadQueue(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to load queue: %w", err)
			}
			log.Info().
				Int("pending", len(snap.Pending)).
				Int("evaluating", len(snap.Evaluating)).
				Int("finished", len(snap.Finished)).
				Msg("queue loaded")

			var entries []evalqueue.Entry
			switch evalqueue.Status(status) {
			case evalqueue.StatusPending:
				entries = snap.Pending
			case evalqueue.StatusEvaluating:
				entries = snap.Evaluating
			case evalqueue.StatusFinished:
				entries = snap.Finished
			case "":
				entries = append(append(append(entries, snap.Pending...), snap.Evaluating...), snap.Finished...)
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			printEntries(entries, time.Now())
			return nil
		},
	}
	listCmd.Flags().StringVarP(&status, "status", "s", "", "Only list requests with this status [pending, evaluating, finished]")

	queueCmd.AddCommand(listCmd)
	return queueCmd
}

func printEntries(entries []evalqueue.Entry, now time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tREVISION\tPRECISION\tSTATUS\tSUBMITTER\tWAITING")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Revision, e.Precision, e.Status, e.Submitter,
			e.WaitTime(now).Truncate(time.Minute))
	}
	w.Flush()
}
