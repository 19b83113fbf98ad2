package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "icalevents/internal/log"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "icalevents",
	Short: "Expand iCalendar recurrences into concrete occurrences",
	Long: `icalevents reads iCalendar feeds, expands RRULE, RDATE and EXDATE into the
occurrences that fall inside a time window, and prints or serves them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("log-level") {
			return nil
		}
		level, ok := appLog.ParseLevel(logLevel)
		if !ok {
			appLog.Warn("unknown log level, using info", "log_level", logLevel)
		}
		appLog.SetLevel(level)
		return nil
	},
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
