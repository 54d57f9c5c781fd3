package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wemarka/wmai/internal/config"
	"github.com/wemarka/wmai/internal/log"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

// v holds configuration shared by all commands. Flags bind into it so they
// take precedence over environment variables.
var v = config.New()

var rootCmd = &cobra.Command{
	Use:     "wmai",
	Short:   "wmai - remote SQL execution proxy for hosted Postgres projects",
	Long:    `Runs caller-supplied SQL on a hosted Supabase/Postgres project through a cascade of RPC strategies, logging every execution.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Init(&log.Config{
			Level:  v.GetString(config.KeyLogLevel),
			Format: v.GetString(config.KeyLogFormat),
			Output: "stderr",
		})
	},
	SilenceUsage: true,
}

func init() {
	// Set version template to include build info when available
	rootCmd.SetVersionTemplate("wmai version {{.Version}}\n")

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	bindFlag(v, config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag(v, config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration for the running command.
func loadConfig() (*config.Config, error) {
	return config.Load(v)
}
