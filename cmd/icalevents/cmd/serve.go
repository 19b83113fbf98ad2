package cmd

import (
	"github.com/spf13/cobra"

	"icalevents/internal/config"
	appLog "icalevents/internal/log"
	"icalevents/internal/web"
)

var (
	serveConfigPath string
	serveListen     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve expanded feeds over HTTP",
	Long: `Loads the configured feeds, refreshes them on the configured cron schedule
and serves /health, /api/events and /api/expand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.Load(serveConfigPath)
		if err != nil {
			appLog.Error("failed to load config", err, "config_path", serveConfigPath)
			return err
		}
		if serveListen != "" {
			conf.Listen = serveListen
		}
		if !cmd.Flags().Changed("log-level") {
			level, _ := appLog.ParseLevel(conf.LogLevel)
			appLog.SetLevel(level)
		}

		appLog.Info("effective config",
			"listen", conf.Listen,
			"timezone", conf.Timezone,
			"refresh", conf.RefreshCron,
			"horizon_days", conf.HorizonDays,
			"backfill_days", conf.BackfillDays,
			"ics_count", len(conf.ICS),
		)

		err = web.StartServer(cmd.Context(), conf)
		appLog.Info("icalevents exiting")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "/etc/icalevents/config.yaml", "path to config file (created with defaults if missing)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}
