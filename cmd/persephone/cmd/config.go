package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/config"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := readSettings()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(v.AllSettings())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		v, err := readSettings()
		if err != nil {
			return err
		}
		v.Set(key, value)

		var cfg config.Config
		if err := v.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := v.WriteConfigAs(configPath()); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s to %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := readSettings()
		if err != nil {
			return err
		}
		if !v.IsSet(args[0]) {
			fmt.Fprintln(cmd.OutOrStdout(), "Not set")
			return nil
		}
		val := v.Get(args[0])
		if nested, ok := val.(map[string]any); ok {
			data, err := yaml.Marshal(nested)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		data, err := yaml.Marshal(config.Defaults())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("error writing file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config scaffolded to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configViewCmd, configSetCmd, configGetCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(configCmd, initCmd)
}
