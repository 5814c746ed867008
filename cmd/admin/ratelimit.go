package main

import (
	"fmt"
	"time"

	"github.com/programme-lv/evalboard/conf"
	"github.com/programme-lv/evalboard/ratelimit"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRateLimitCmd() *cobra.Command {
	var rateLimitCmd = &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect submission rate limits",
	}

	var checkCmd = &cobra.Command{
		Use:   "check <submitter>",
		Short: "Report whether a submitter may submit now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.LoadFromEnv()
			if err != nil {
				return err
			}
			policy, err := conf.LoadPolicy(cfg.PolicyFile)
			if err != nil {
				return err
			}
			snap, err := loadQueue(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to load queue: %w", err)
			}

			submitter := args[0]
			d := ratelimit.Check(snap.SubmitterHistory(submitter), time.Now(), submitter, policy.RateLimit())
			log.Info().
				Str("submitter", submitter).
				Bool("allowed", d.Allowed).
				Int("count", d.Count).
				Int("quota", d.Quota).
				Msg("rate limit checked")
			if d.Allowed {
				fmt.Printf("%s may submit (%d submissions in the last %d days)\n", submitter, d.Count, policy.RateLimitPeriodDays)
			} else {
				fmt.Println(d.Message)
			}
			return nil
		},
	}

	rateLimitCmd.AddCommand(checkCmd)
	return rateLimitCmd
}
