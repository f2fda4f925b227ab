package cmd

import (
	"os"
	"strings"

	"replybot/pkg/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rulesPath  string
)

var rootCmd = &cobra.Command{
	Use:          "replybot",
	Short:        "Rule-based chatbot replies",
	Long:         "replybot answers chat messages from a file of reply rules, filling placeholders such as %first_name% or %date% in the chosen reply.",
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return config.LoadDotEnv()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (defaults to $REPLYBOT_CONFIG, ./config.json, ./config/config.json)")
	rootCmd.PersistentFlags().StringVarP(&rulesPath, "rules", "r", "", "rules file, overriding the configured path")
}

// loadConfig resolves the configuration for every command. Without a config file the
// defaults and environment overrides apply.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if path := strings.TrimSpace(configPath); path != "" {
		cfg, err = config.LoadConfigFile(path)
	} else {
		cfg, err = config.LoadConfigOrDefault()
	}
	if err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(rulesPath); path != "" {
		cfg.Rules.Path = path
	}

	return cfg, nil
}
