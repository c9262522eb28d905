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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/clarisql/internal/api"
	"github.com/kalambet/clarisql/internal/config"
	"github.com/kalambet/clarisql/internal/dataset"
	"github.com/kalambet/clarisql/internal/fewshot"
	"github.com/kalambet/clarisql/internal/gateway"
	"github.com/kalambet/clarisql/internal/prompt"
	"github.com/kalambet/clarisql/internal/schema"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clarisql server (foreground)",
	Long: `Start the clarisql server.

Serves the HTTP API on the configured port and, with --mcp, the MCP tool
server on stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clarisql system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdio")
}

// fewShotAdapter bridges the exemplar index to the API's rendered-block
// interface.
type fewShotAdapter struct {
	idx *fewshot.Index
}

func (a *fewShotAdapter) FewShot(ctx context.Context, question string, shots int) string {
	entries := a.idx.Search(ctx, question, shots)
	examples := make([]prompt.Example, 0, len(entries))
	for _, e := range entries {
		examples = append(examples, prompt.Example{Question: e.Question, SQL: e.SQL})
	}
	return prompt.FormatExamples(examples)
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "clarisql version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	locator := schema.NewLocator(cfg.Data.DBRoot)

	deps := api.Deps{
		Generator:      client,
		Schemas:        locator,
		Model:          cfg.Gateway.Model,
		AmbiguityModel: cfg.Gateway.AmbiguityModel,
		Shots:          cfg.Refine.Shots,
		Token:          cfg.Server.Token,
	}

	if cfg.Data.QuestionBankDir != "" {
		entries, err := dataset.LoadExemplars(cfg.Data.QuestionBankDir, slog.Default())
		if err != nil {
			return err
		}
		idx := fewshot.NewIndex(ctx, entries, fewshot.Options{
			Embedder: client,
			Model:    cfg.Gateway.EmbedModel,
		})
		slog.Info("question bank loaded", "exemplars", idx.Size(), "lexical", idx.Lexical())
		deps.Exemplars = &fewShotAdapter{idx: idx}
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	if mcpStdio {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "clarisql listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Gateway", "%s", cfg.Gateway.BaseURL)
	printStatus("Model", "%s", cfg.Gateway.Model)
	printStatus("Ambiguity model", "%s", cfg.Gateway.AmbiguityModel)
	printStatus("Embed model", "%s", cfg.Gateway.EmbedModel)
	printStatus("Strategy", "%s (max %d rounds)", cfg.Refine.Strategy, cfg.Refine.MaxRounds)
	printStatus("DB root", "%s", cfg.Data.DBRoot)
	if cfg.Data.QuestionBankDir != "" {
		printStatus("Question bank", "%s", cfg.Data.QuestionBankDir)
	}
	return nil
}
