package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/seo-optimizer/seo-inspector/analyzer"
	"github.com/seo-optimizer/seo-inspector/errs"
)

func registerTools(s *server.MCPServer, a *analyzer.Analyzer) {
	s.AddTool(mcp.NewTool("fetch_page",
		mcp.WithDescription("Fetch a URL and report its final URL, HTTP status, redirect chain and response headers. The body is not returned."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL to fetch"),
		),
	), handleFetch(a))

	s.AddTool(mcp.NewTool("analyze_page",
		mcp.WithDescription("Fetch a URL and extract SEO facts: title, meta tags, canonical, headings, internal and external links, images, Open Graph, Twitter Card, JSON-LD and hreflang."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL to analyze"),
		),
	), handleAnalyze(a))

	s.AddTool(mcp.NewTool("parse_html",
		mcp.WithDescription("Extract SEO facts from an HTML string without fetching anything."),
		mcp.WithString("html",
			mcp.Required(),
			mcp.Description("The HTML markup to analyze"),
		),
		mcp.WithString("base_url",
			mcp.Description("Absolute URL used to resolve relative links and classify them as internal or external"),
		),
	), handleParse(a))
}

func handleFetch(a *analyzer.Analyzer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		res, err := a.Fetch(ctx, url)
		if err != nil {
			var chain []string
			if res != nil {
				chain = res.RedirectChain
			}
			return toolError(err, chain), nil
		}
		return jsonResult(res)
	}
}

func handleAnalyze(a *analyzer.Analyzer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		analysis, err := a.Analyze(ctx, url)
		if err != nil {
			var chain []string
			if analysis != nil {
				chain = analysis.RedirectChain
			}
			return toolError(err, chain), nil
		}
		return jsonResult(analysis)
	}
}

func handleParse(a *analyzer.Analyzer) server.ToolHandlerFunc {
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		html, err := request.RequireString("html")
		if err != nil {
			return mcp.NewToolResultError("html is required"), nil
		}
		facts, err := a.AnalyzeMarkup(html, request.GetString("base_url", ""))
		if err != nil {
			return toolError(err, nil), nil
		}
		return jsonResult(facts)
	}
}

// toolError renders err as "kind: message", followed by the redirects
// followed before the failure, if any.
func toolError(err error, chain []string) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %v", errs.KindOf(err), err)
	if len(chain) > 0 {
		msg += "\nredirect chain: " + strings.Join(chain, " -> ")
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
