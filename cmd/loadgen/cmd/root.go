package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/loadgen/internal/common/config"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
)

const (
	configFlag        = "config"
	defaultConfigPath = "./config/loadgen"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "loadgen writes synthetic e-commerce data into a storage backend at a controlled rate.",
		Long: `loadgen writes synthetic e-commerce data into a storage backend at a controlled rate.

Configuration is read from ./config/loadgen/config.yaml, then from each file passed with --config in order,
then from LOADGEN_ prefixed environment variables, e.g. LOADGEN_SINK_KIND=postgres.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringSlice(
		configFlag,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)

	cmd.AddCommand(
		runCmd(),
		serveCmd(),
		estimateCmd(),
	)

	return cmd
}

// Execute runs the root command and exits the process on failure.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadConfiguration(cmd *cobra.Command) (configuration.Configuration, error) {
	var cfg configuration.Configuration
	userFiles, err := cmd.Flags().GetStringSlice(configFlag)
	if err != nil {
		return cfg, err
	}
	if err := config.LoadConfig(viper.New(), &cfg, defaultConfigPath, userFiles); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		config.LogValidationErrors(err)
		return cfg, err
	}
	return cfg, nil
}
