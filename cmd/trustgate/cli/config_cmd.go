package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meigma/trustgate/cmd/trustgate/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage trustgate configuration",
	Long: `View and modify trustgate configuration.

Without arguments, displays the current effective configuration.
Use subcommands to view the config path, initialize a config file,
or set configuration values.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := config.File()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long: `Create a default configuration file at the XDG config path.

The file will be created at ~/.config/trustgate/config.yaml (or
$XDG_CONFIG_HOME/trustgate/config.yaml if set).`,
	RunE: runConfigInit,
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath, err := config.File()
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(configPath); statErr == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if mkdirErr := os.MkdirAll(filepath.Dir(configPath), 0o750); mkdirErr != nil {
		return mkdirErr
	}

	data, err := yaml.Marshal(config.Defaults())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if writeErr := os.WriteFile(configPath, data, 0o600); writeErr != nil {
		return writeErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", configPath)
	return nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Examples:
  trustgate config set policy.path /etc/trustgate/policy.yaml
  trustgate config set load.max-size 2GiB
  trustgate config set verbose true`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	var parsed any = value
	if b, err := strconv.ParseBool(value); err == nil {
		parsed = b
	}

	// Reject values that do not decode, such as a malformed duration.
	probe := viper.New()
	if err := probe.MergeConfigMap(viper.AllSettings()); err != nil {
		return err
	}
	probe.Set(key, parsed)
	var cfg config.Config
	if err := probe.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	viper.Set(key, parsed)

	configPath, err := config.File()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return err
	}
	if cfgFile != "" {
		configPath = cfgFile
	}
	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s = %v\n", key, parsed)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings := viper.AllSettings()
	if sign, ok := settings["sign"].(map[string]any); ok {
		if _, ok := sign["password"]; ok {
			sign["password"] = "<redacted>"
		}
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
