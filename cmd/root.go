// Package cmd is the brokerage command line.
//
// Configuration is read, lowest priority first, from .brokerage.yml in the
// working directory (or the file named by BROKERAGE_CONFIG_FILE or
// --config), a .env file, BROKERAGE_<SECTION>_<OPTION> environment
// variables and finally command-line flags.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "brokerage",
	Short: "Marketing site and lead intake for an independent insurance agency",
	Long: `brokerage serves the agency's marketing pages and quote forms.

Quick Start:
  brokerage serve                 Start the site on localhost:8080
  brokerage serve --open          Start it and open a browser
  brokerage health                Probe a running server
  brokerage forms show <session>  Inspect a visitor's saved drafts
  brokerage leads list            List recent leads`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .brokerage.yml, can also use BROKERAGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("env", "", "environment (development, production, test)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("server.environment", rootCmd.PersistentFlags().Lookup("env"))
}

// initConfig points viper at the config file and the environment.
func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("BROKERAGE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".brokerage")
	}

	viper.SetEnvPrefix("BROKERAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	}), nil
}
