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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seo-optimizer/seo-inspector/analyzer"
	"github.com/seo-optimizer/seo-inspector/api"
	"github.com/seo-optimizer/seo-inspector/config"
	"github.com/seo-optimizer/seo-inspector/fetcher"
	"github.com/seo-optimizer/seo-inspector/logging"
	"github.com/seo-optimizer/seo-inspector/middleware"
	"github.com/seo-optimizer/seo-inspector/stats"
	"github.com/seo-optimizer/seo-inspector/ui"
)

const (
	shutdownTimeout = 5 * time.Second
	statsRetention  = 12 // months kept besides the current one
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seo-inspector: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	apiPort := flag.Int("api-port", cfg.Server.APIPort, "API server port")
	uiPort := flag.Int("ui-port", cfg.Server.UIPort, "UI server port")
	flag.Parse()
	cfg.Server.APIPort, cfg.Server.UIPort = *apiPort, *uiPort
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(cfg.Server.Mode)
	if len(cfg.EnvFiles) == 0 {
		logger.Info("no .env file found, using environment variables")
	} else {
		logger.WithField("files", cfg.EnvFiles).Info("loaded environment files")
	}

	f := fetcher.New(fetcher.Config{
		Timeout:              cfg.Fetch.Timeout,
		MaxRedirects:         cfg.Fetch.MaxRedirects,
		MaxBodyBytes:         cfg.Fetch.MaxBodyBytes,
		UserAgent:            cfg.Fetch.UserAgent,
		BlockPrivateNetworks: cfg.Fetch.BlockPrivateNetworks,
	}, logger)

	storage, err := stats.NewStorage(cfg.Stats.Dir, logger)
	if err != nil {
		return fmt.Errorf("initializing statistics: %w", err)
	}
	storage.Cleanup(statsRetention)
	defer func() {
		if err := storage.Shutdown(); err != nil {
			logger.WithError(err).Warn("saving statistics on shutdown failed")
		}
	}()

	apiServer := &http.Server{
		Addr: cfg.APIAddr(),
		Handler: api.NewRouter(api.Options{
			Analyzer:    analyzer.New(f, logger),
			Stats:       storage,
			RateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
			Logger:      logger,
			DevMode:     cfg.DevMode,

			TrustedProxies: cfg.Server.TrustedProxies,
			MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	uiServer := &http.Server{
		Addr:              cfg.UIAddr(),
		Handler:           ui.NewRouter(cfg.Server.APIPort, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range map[string]*http.Server{"api": apiServer, "ui": uiServer} {
		g.Go(func() error {
			logger.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), uiServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
