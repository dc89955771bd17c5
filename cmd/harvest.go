package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobharvest/internal/api"
	"jobharvest/internal/config"
	"jobharvest/internal/fetch"
	"jobharvest/internal/pipeline"
)

func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Runs one full harvest",
		Long: `Discovers postings for every configured search term, extracts them
concurrently and writes the results to all configured outputs. Interrupt
with SIGINT/SIGTERM for a cooperative shutdown: queued postings finish,
buffered records flush, and the archive is still bundled.`,

		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher, err := buildFetcher(rt.cfg, rt.logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(rt.cfg, fetcher, rt.logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	var srv *api.Server
	if rt.cfg.API.Enabled {
		srv = api.NewServer(rt.cfg.API.Port, p.Tracker(), p.RunID(), rt.logger)
		go func() {
			if err := srv.Start(); err != nil {
				rt.logger.Warn("status api stopped", zap.Error(err))
			}
		}()
	}

	runErr := p.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("status api shutdown failed", zap.Error(err))
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run harvest: %w", runErr)
	}
	return nil
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (fetch.Fetcher, error) {
	switch cfg.Fetch.Backend {
	case "proxy":
		return fetch.NewProxyFetcher(fetch.ProxyConfig{
			Endpoint:   cfg.Fetch.ProxyEndpoint,
			APIKey:     cfg.Fetch.ProxyAPIKey,
			RenderJS:   cfg.Fetch.RenderJS,
			UserAgents: cfg.Fetch.UserAgents,
			Timeout:    cfg.FetchTimeout(),
		}, logger)
	case "direct":
		return fetch.NewCollyFetcher(fetch.CollyConfig{
			UserAgents:  cfg.Fetch.UserAgents,
			Timeout:     cfg.FetchTimeout(),
			Parallelism: cfg.Workers.Extract,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", cfg.Fetch.Backend)
	}
}
