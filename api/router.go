// Package api exposes the analyzer over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/seo-inspector/analyzer"
	"github.com/seo-optimizer/seo-inspector/fetcher"
	"github.com/seo-optimizer/seo-inspector/middleware"
	"github.com/seo-optimizer/seo-inspector/stats"
)

const (
	ServiceName = "SEO Inspector API"
	Version     = "1.1.0"
)

// Options wires the router. Stats and RateLimiter are optional.
type Options struct {
	Analyzer    *analyzer.Analyzer
	Stats       *stats.Storage
	RateLimiter *middleware.RateLimiter
	Logger      logrus.FieldLogger
	DevMode     bool

	// TrustedProxies may set X-Forwarded-For; nil trusts none.
	TrustedProxies []string
	// MaxBodyBytes caps request bodies; zero means fetcher.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// statsOps maps counted routes to their operation.
var statsOps = map[string]stats.Operation{
	"/api/analyze": stats.OpAnalyze,
	"/api/fetch":   stats.OpFetch,
	"/api/parse":   stats.OpParse,
}

// NewRouter builds the API engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = fetcher.DefaultMaxBodyBytes
	}
	h := &handler{
		analyzer:     opts.Analyzer,
		stats:        opts.Stats,
		devMode:      opts.DevMode,
		maxBodyBytes: opts.MaxBodyBytes,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		opts.Logger.WithError(err).Warn("ignoring trusted proxies")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.ErrorHandler(opts.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.CORS())

	r.GET("/", h.index)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.RateLimit())
	}
	if opts.Stats != nil {
		api.Use(middleware.Stats(opts.Stats, statsOps))
	}
	{
		api.GET("/fetch", h.fetch)
		api.GET("/analyze", h.analyzeQuery)
		api.POST("/analyze", h.analyzeJSON)
		api.POST("/parse", h.parse)
		api.GET("/statistics", h.statistics)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})

	return r
}
