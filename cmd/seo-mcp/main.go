// Command seo-mcp exposes page fetching and SEO analysis as MCP tools over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/seo-optimizer/seo-inspector/analyzer"
	"github.com/seo-optimizer/seo-inspector/api"
	"github.com/seo-optimizer/seo-inspector/config"
	"github.com/seo-optimizer/seo-inspector/fetcher"
	"github.com/seo-optimizer/seo-inspector/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr.
	logger := logging.NewWithOutput(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	f := fetcher.New(fetcher.Config{
		Timeout:              cfg.Fetch.Timeout,
		MaxRedirects:         cfg.Fetch.MaxRedirects,
		MaxBodyBytes:         cfg.Fetch.MaxBodyBytes,
		UserAgent:            cfg.Fetch.UserAgent,
		BlockPrivateNetworks: cfg.Fetch.BlockPrivateNetworks,
	}, logger)

	s := server.NewMCPServer(
		"seo-inspector",
		api.Version,
		server.WithToolCapabilities(false),
	)
	registerTools(s, analyzer.New(f, logger))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
