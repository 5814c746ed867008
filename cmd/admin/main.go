package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	var logLevel string
	var logFile string

	var rootCmd = &cobra.Command{
		Use:   "evalboard-admin",
		Short: "Admin CLI tool for the evaluation leaderboard",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("error loading .env file: %w", err)
			}
			return initLogger(logLevel, logFile)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level [debug, info, warn, error]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(newQueueCmd())
	rootCmd.AddCommand(newVotesCmd())
	rootCmd.AddCommand(newRateLimitCmd())
	rootCmd.AddCommand(newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
