// Command agentd runs the conversational agent runtime: an HTTP listener
// that dispatches inbound conversation turns to registered business logic,
// mediating LLM and outbound HTTP calls with retries and call-event
// tracking.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"agentd/pkg/config"
	"agentd/pkg/dispatch"
	"agentd/pkg/httpx"
	"agentd/pkg/llm"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/server"
	"agentd/pkg/version"
)

func main() {
	var (
		configPath  = flag.String("config", "agentd.yaml", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentd %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	os.Exit(run(*configPath))
}

// run contains the main application logic and returns an exit code. This
// allows defers to execute before os.Exit is called.
func run(configPath string) int {
	logger := logx.NewLogger("main")

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment as-is")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration: %v", err)
		return 1
	}
	logx.SetDebug(cfg.Debug.Enabled, cfg.Debug.Domains)

	recorder := metrics.NewPrometheusRecorder()
	facade := llm.NewFacade(cfg.LLM, recorder)
	httpClient := httpx.New(cfg.HTTP, recorder)

	dispatcher := dispatch.New(facade, httpClient, recorder)
	dispatcher.Register("/assistant", NewAssistantHandler())
	dispatcher.Register("/echo", EchoHandler())

	srv := server.New(cfg.Server, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed: %v", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete: %v", err)
			return 1
		}
		logger.Info("shutdown complete")
	}
	return 0
}
