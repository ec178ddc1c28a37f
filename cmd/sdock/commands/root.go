package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/sdock/internal/config"
	"github.com/bryanchriswhite/sdock/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "sdock",
		Short: "sdock - a glassy dock panel for Wayland",
		Long: `sdock draws a trapezoid dock panel with a soft drop shadow and a
frosted glass reflection of the screen behind it.

Running sdock with no arguments opens the dock. Press Escape in the dock
or close its window to quit.`,
		SilenceUsage: true,
		RunE:         runDock,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/sdock/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file, applies the --log-level override and
// initializes the logger from the result
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level := viper.GetString("log_level"); level != "" {
		configMgr.SetLogLevel(level)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}
