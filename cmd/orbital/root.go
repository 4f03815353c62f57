package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbital-ai/orbital/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "orbital",
	Short: "Orbital - conversational data analysis backend",
	Long:  "Orbital runs a tool-calling analysis agent over datasets you upload: SQL, statistics, charts, models, and forecasts through a chat API.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".orbital", "config.json"),
		"config file path")
}

// loadConfig loads the config file or exits; commands past argument parsing
// cannot do anything useful without it.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
