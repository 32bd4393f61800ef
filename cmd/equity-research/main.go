// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the equity-research CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is built in PersistentPreRunE once config is loaded.
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "equity-research",
	Short: "Multi-analyst equity research reports",
	Long: `equity-research researches a company from several angles at once:
financials, fundamentals, valuation, news, industry and company profile.
Each analyst gathers documents through web search; the documents are
curated, briefed by an LLM and compiled into one markdown report.

Run a single job with "research", or start the HTTP/websocket API with
"serve". Finished jobs are kept in a SQLite store queried by "jobs".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := buildLogger(viper.GetString("log.level"), viper.GetString("log.format"))
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./equity-research.yaml or ~/.config/equity-research/equity-research.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of API key files")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("secrets_dir", rootCmd.PersistentFlags().Lookup("secrets-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("equity-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "equity-research"))
		}
	}

	viper.SetEnvPrefix("EQUITY_RESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
