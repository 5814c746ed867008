package main

import (
	"fmt"
	"time"

	"github.com/programme-lv/evalboard/auth"
	"github.com/programme-lv/evalboard/conf"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	var scopes []string
	var ttl time.Duration
	var issueCmd = &cobra.Command{
		Use:   "issue <username>",
		Short: "Issue a signed token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.LoadFromEnv()
			if err != nil {
				return err
			}
			token, err := auth.GenerateJWT(args[0], scopes, ttl, cfg.JwtKey)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	issueCmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to grant")
	issueCmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")

	tokenCmd.AddCommand(issueCmd)
	return tokenCmd
}
