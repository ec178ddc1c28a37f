package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/sdock/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sdock configuration",
	Long:  `View and manage sdock configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective sdock configuration, defaults included.`,
	Example: `  # Show configuration as YAML (default)
  sdock config show

  # Show configuration as JSON
  sdock config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value and write the config file.`,
	Example: `  # Enable the preview server
  sdock config set preview.enabled true

  # Move the dock higher
  sdock config set placement.y_percent 85`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Example: `  # Get log level
  sdock config get log_level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

// allowedValues restricts string keys with a fixed vocabulary
var allowedValues = map[string][]string{
	"log_level":         {"debug", "info", "warn", "error"},
	"capture.backend":   {"auto", "x11", "none"},
	"placement.backend": {"auto", "sway", "kwin", "none"},
}

// parseValue converts value to the type of key's default
func parseValue(key string, current any, value string) (any, error) {
	switch current.(type) {
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		if n < 0 {
			return nil, fmt.Errorf("%s must not be negative", key)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid positive number for %s: %s", key, value)
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
		}
		return b, nil
	default:
		if allowed, ok := allowedValues[key]; ok {
			for _, a := range allowed {
				if a == value {
					return value, nil
				}
			}
			return nil, fmt.Errorf("invalid value for %s: %s (use one of %v)", key, value, allowed)
		}
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	parsed, err := parseValue(key, v.Get(key), value)
	if err != nil {
		return err
	}
	v.Set(key, parsed)

	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration updated: %s = %v\n", key, parsed)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
