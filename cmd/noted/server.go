package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/noted/internal/api"
	"github.com/kalambet/noted/internal/config"
	"github.com/kalambet/noted/internal/embedding"
	"github.com/kalambet/noted/internal/health"
	"github.com/kalambet/noted/internal/notes"
	"github.com/kalambet/noted/internal/search"
	"github.com/kalambet/noted/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the noted server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running noted server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show noted system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "noted.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "noted version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure an API token exists before anything can talk to us.
	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to double-start. A live health endpoint means another instance
	// already owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("noted is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("noted is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check the embedding backend and pull the model if it is missing.
	client := embedding.NewClient(cfg.Ollama.BaseURL)
	if err := embedding.EnsureReady(ctx, client, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	engine := embedding.NewEngine(client, cfg.Ollama.EmbedModel, cfg.Embedding.Dimension)
	noteSvc := notes.NewService(store, engine, slog.Default())
	searchEngine := search.NewEngine(engine, store, cfg.Search.Threshold, slog.Default())
	reporter := health.NewReporter(store, engine)

	handler := api.NewHandler(api.Deps{
		Notes:       noteSvc,
		Search:      searchEngine,
		Health:      reporter,
		Store:       store,
		Token:       apiToken,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		DefaultTopK: cfg.Search.TopK,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio so agent clients can use the note collection.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Notes:    noteSvc,
		Searcher: searchEngine,
		Store:    store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "noted listening on %s\n", addr)
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

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("noted is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop noted (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to noted (PID %d)", pid)
	return nil
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

	serverUp := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		serverUp = true
		switch resp.StatusCode {
		case http.StatusOK:
			printStatus("Server", "running on port %d", cfg.Server.Port)
		case http.StatusServiceUnavailable:
			printStatus("Server", "running on port %d (unhealthy)", cfg.Server.Port)
		default:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

	// Show note counts if the server is up.
	if serverUp {
		if metrics, mErr := client.Get(serverURL + "/metrics"); mErr == nil {
			var payload struct {
				Notes struct {
					Total          int `json:"total"`
					WithEmbeddings int `json:"with_embeddings"`
				} `json:"notes"`
			}
			if decodeErr := decodeJSON(metrics, &payload); decodeErr == nil {
				printStatus("Notes", "%d total, %d embedded", payload.Notes.Total, payload.Notes.WithEmbeddings)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
