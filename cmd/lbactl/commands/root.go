// Package commands implements the lbactl CLI for inspecting and maintaining
// block-address log files offline.
package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marmos91/lbalog/internal/bytesize"
	"github.com/marmos91/lbalog/internal/logger"
	"github.com/marmos91/lbalog/pkg/extent"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lbactl",
	Short: "lbactl - block-address log maintenance",
	Long: `lbactl inspects and maintains the block-address log of a log-structured
storage engine while the engine is offline: initialize a fresh log, print
its current mappings, or compact away superseded entries.

Use "lbactl [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./lbactl.yaml)")
	rootCmd.PersistentFlags().String("data", "lba.dat", "path to the data file")
	rootCmd.PersistentFlags().String("anchor", "", "path to the anchor file (default: <data>.anchor)")
	rootCmd.PersistentFlags().String("extent-size", bytesize.Size(extent.DefaultExtentSize).String(), "extent size (e.g. 64Ki, 1MiB, 4096)")
	rootCmd.PersistentFlags().String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")

	for _, flag := range []string{"data", "anchor", "extent-size", "log-level"} {
		_ = viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag))
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(compactCmd)
}

// setup loads configuration (file, env, flags) and initializes logging.
// Every value can be overridden with LBACTL_* environment variables.
func setup(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lbactl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("LBACTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return logger.Init(logger.Config{
		Level:  viper.GetString("log-level"),
		Format: "text",
		Output: "stderr",
	})
}
