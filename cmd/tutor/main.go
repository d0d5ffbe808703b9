package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xhad/tutor/pkg/config"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "tutor",
	Short:         "Course tutor: ingest class material and answer student questions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if errs := loaded.Validate(); len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}
		if err := setupLogging(loaded.Log); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

func setupLogging(c config.LogConfig) error {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	if c.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
