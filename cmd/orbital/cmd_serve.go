package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orbital-ai/orbital/internal/contextbuild"
	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/httpapi"
	"github.com/orbital-ai/orbital/internal/maintenance"
	"github.com/orbital-ai/orbital/internal/orchestrator"
	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/store"
	"github.com/orbital-ai/orbital/internal/tools"
	"github.com/orbital-ai/orbital/pkg/llm"
	"github.com/orbital-ai/orbital/pkg/llm/openai"
)

// maintenanceSchedule runs cleanup nightly at 3am.
const maintenanceSchedule = "0 3 * * *"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Orbital server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// SQLite engine shared by the query layer and the metadata store.
	engine, err := data.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer engine.Close()

	st, err := store.New(engine.DB())
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	// LLM provider
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	// Context engine; an optional prompt file overrides the built-in prompt.
	promptTemplate := ""
	if cfg.SystemPromptPath != "" {
		raw, err := os.ReadFile(cfg.SystemPromptPath)
		if err != nil {
			return fmt.Errorf("read system prompt: %w", err)
		}
		promptTemplate = string(raw)
	}
	builder, err := contextbuild.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve, promptTemplate)
	if err != nil {
		return fmt.Errorf("create context engine: %w", err)
	}

	// Orchestrator + queue
	orch := orchestrator.New(
		provider,
		builder,
		st,
		st,
		engine,
		registry.Default(),
		tools.NewSet(),
		orchestrator.Config{
			MaxToolRounds: cfg.MaxToolRounds,
			TurnTimeout:   time.Duration(cfg.Timeouts.TurnSeconds) * time.Second,
			ReadTimeout:   time.Duration(cfg.Timeouts.ReadToolSeconds) * time.Second,
			WriteTimeout:  time.Duration(cfg.Timeouts.WriteToolSeconds) * time.Second,
		},
		slog.Default(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := orchestrator.NewQueue(int64(cfg.MaxConcurrent))
	queue.SetProcessor(orch.ProcessTurn)
	queue.Start(ctx)
	defer queue.Stop()

	// Nightly cleanup
	janitor := maintenance.New(st, engine, slog.Default())
	if err := janitor.Start(maintenanceSchedule); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer janitor.Stop()

	handler := httpapi.NewHandler(st, engine, queue, provider, cfg.LLM.Model)
	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     handler.Router(),
		ReadTimeout: 30 * time.Second,
		// Chat requests block for the whole turn; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("orbital started",
			"addr", cfg.ListenAddr,
			"database", cfg.DatabasePath,
			"max_concurrent", cfg.MaxConcurrent,
			"max_tool_rounds", cfg.MaxToolRounds,
			"llm_model", cfg.LLM.Model,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	queue.WaitIdle(30 * time.Second)
	slog.Info("stopped")
	return nil
}
