package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"annotate/api/internal/config"
	"annotate/api/internal/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "annotate-api",
	Short:         "Annotation search API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (defaults to $ANNOTATE_CONFIG)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return cfg, err
	}
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		return cfg, err
	}
	log.Debug().Str("addr", cfg.Addr).Msg("configuration loaded")
	return cfg, nil
}
