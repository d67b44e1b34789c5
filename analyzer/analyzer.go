// Package analyzer turns a URL or a markup string into a structured SEO fact-set.
package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/seo-inspector/errs"
	"github.com/seo-optimizer/seo-inspector/fetcher"
	"github.com/seo-optimizer/seo-inspector/logging"
)

// PageFetcher retrieves a page. *fetcher.Fetcher implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// Analyzer runs the fetch, parse and extract pipeline. It keeps no state
// between calls and is safe for concurrent use.
type Analyzer struct {
	fetcher PageFetcher
	logger  logrus.FieldLogger
}

// New creates an Analyzer.
func New(f PageFetcher, logger logrus.FieldLogger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Analyzer{fetcher: f, logger: logger}
}

// Fetch retrieves rawURL without analyzing it.
func (a *Analyzer) Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error) {
	start := time.Now()
	res, err := a.fetcher.Fetch(ctx, rawURL)

	log := logging.FromContext(ctx, a.logger).WithFields(logrus.Fields{
		"url":      rawURL,
		"hops":     hopCount(res),
		"duration": time.Since(start).String(),
	})
	if err != nil {
		log.WithField("kind", errs.KindOf(err).String()).WithError(err).Warn("fetch failed")
		return res, err
	}
	log.WithField("status", res.StatusCode).Info("fetch complete")
	return res, nil
}

// Analyze fetches rawURL and extracts SEO facts from whatever page the
// server returned, error pages included. On a fetch failure the returned
// Analysis carries only the last URL tried and the hops followed; SEO is nil.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*Analysis, error) {
	start := time.Now()
	log := logging.FromContext(ctx, a.logger).WithField("url", rawURL)

	res, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.WithFields(logrus.Fields{
			"kind": errs.KindOf(err).String(),
			"hops": hopCount(res),
		}).WithError(err).Warn("analysis failed")
		return partial(rawURL, res), err
	}

	doc := ParseDocument(res.Content, res.ContentType)
	facts := Extract(doc, res.URL, "")

	log.WithFields(logrus.Fields{
		"final_url": res.URL,
		"status":    res.StatusCode,
		"hops":      len(res.RedirectChain),
		"encoding":  doc.Encoding,
		"links":     len(facts.Links.Internal) + len(facts.Links.External),
		"images":    len(facts.Images),
		"words":     facts.WordCount,
		"duration":  time.Since(start).String(),
	}).Info("analysis complete")

	return &Analysis{
		URL:           res.URL,
		StatusCode:    res.StatusCode,
		RedirectChain: res.RedirectChain,
		SEO:           facts,
	}, nil
}

// AnalyzeMarkup extracts SEO facts from markup without any network access.
// baseURL, when set, must be an absolute http(s) URL; it resolves relative
// references and decides which links are internal.
func (a *Analyzer) AnalyzeMarkup(markup, baseURL string) (*SEOFacts, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, errs.New(errs.EmptyInput, "html field is required", nil)
	}
	if strings.TrimSpace(baseURL) != "" {
		if _, err := fetcher.ValidateURL(baseURL); err != nil {
			return nil, err
		}
	}

	doc := ParseDocument([]byte(markup), "text/html; charset=utf-8")
	return Extract(doc, "", baseURL), nil
}

func partial(rawURL string, res *fetcher.Result) *Analysis {
	if res == nil {
		return &Analysis{URL: strings.TrimSpace(rawURL), RedirectChain: []string{}}
	}
	chain := res.RedirectChain
	if chain == nil {
		chain = []string{}
	}
	return &Analysis{URL: res.URL, RedirectChain: chain}
}

func hopCount(res *fetcher.Result) int {
	if res == nil {
		return 0
	}
	return len(res.RedirectChain)
}
