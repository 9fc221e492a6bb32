package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tartarus-sandbox/persephone/pkg/config"
)

var (
	cfgFile  string
	output   string
	logLevel string

	settings = config.New()
)

var rootCmd = &cobra.Command{
	Use:           "persephone",
	Short:         "Persephone CLI",
	Long:          `Backtest weekly forecasting models against historical series and archive the reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment into a fresh viper
// instance, so repeated invocations in one process do not share state.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	settings = config.New()
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		settings.Set("log.level", logLevel)
	}
	return config.Load(settings, cfgFile)
}

// readSettings loads the file the config commands edit, without
// validating it: --config, or ./persephone.yaml.
func readSettings() (*viper.Viper, error) {
	settings = config.New()
	settings.SetConfigFile(configPath())
	if err := settings.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return settings, nil
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "persephone.yaml"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./persephone.yaml or $HOME/.persephone/persephone.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format: table, json or yaml (default table on a terminal, json otherwise)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}
