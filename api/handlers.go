package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/seo-inspector/analyzer"
	"github.com/seo-optimizer/seo-inspector/errs"
	"github.com/seo-optimizer/seo-inspector/stats"
)

type handler struct {
	analyzer *analyzer.Analyzer
	stats    *stats.Storage
	devMode  bool

	maxBodyBytes int64
}

type urlQuery struct {
	URL string `form:"url" binding:"required"`
}

type analyzeRequest struct {
	URL string `json:"url" binding:"required"`
}

type parseRequest struct {
	HTML    string `json:"html"`
	BaseURL string `json:"base_url"`
}

type errorResponse struct {
	Detail        string    `json:"detail"`
	Kind          errs.Kind `json:"kind"`
	RedirectChain []string  `json:"redirect_chain,omitempty"`
}

func (h *handler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    ServiceName,
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /api/fetch?url=",
			"GET /api/analyze?url=",
			"POST /api/analyze",
			"POST /api/parse",
			"GET /api/statistics",
		},
	})
}

func (h *handler) fetch(c *gin.Context) {
	var q urlQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, errs.New(errs.InvalidURL, "url query parameter is required", nil), nil)
		return
	}

	res, err := h.analyzer.Fetch(c.Request.Context(), q.URL)
	if err != nil {
		var chain []string
		if res != nil {
			chain = res.RedirectChain
		}
		respondError(c, err, chain)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) analyzeQuery(c *gin.Context) {
	var q urlQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, errs.New(errs.InvalidURL, "url query parameter is required", nil), nil)
		return
	}
	h.analyze(c, q.URL)
}

func (h *handler) analyzeJSON(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.New(errs.InvalidURL, "Invalid URL provided", nil), nil)
		return
	}
	h.analyze(c, req.URL)
}

func (h *handler) analyze(c *gin.Context, rawURL string) {
	analysis, err := h.analyzer.Analyze(c.Request.Context(), rawURL)
	if err != nil {
		var chain []string
		if analysis != nil {
			chain = analysis.RedirectChain
		}
		respondError(c, err, chain)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (h *handler) parse(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"detail": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		respondError(c, errs.New(errs.EmptyInput, "request body must be JSON with an html field", nil), nil)
		return
	}

	facts, err := h.analyzer.AnalyzeMarkup(req.HTML, req.BaseURL)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, facts)
}

func (h *handler) statistics(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "statistics are disabled"})
		return
	}

	current := h.stats.GetCurrentStats()
	body := gin.H{
		"current_month":       current,
		"requests":            current.Requests(),
		"average_duration_ms": current.AverageDurationMs(),
	}

	// Full history is only exposed in development.
	if h.devMode {
		history := gin.H{}
		for _, month := range h.stats.GetAllMonths() {
			if s, ok := h.stats.GetMonthlyStats(month); ok {
				history[month] = s
			}
		}
		body["months"] = history
	}
	c.JSON(http.StatusOK, body)
}

// respondError writes err with the status its kind maps to.
func respondError(c *gin.Context, err error, chain []string) {
	var appErr *errs.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "An unexpected error occurred", Kind: errs.Unknown})
		return
	}
	c.JSON(statusForKind(appErr.Kind), errorResponse{
		Detail:        appErr.Error(),
		Kind:          appErr.Kind,
		RedirectChain: chain,
	})
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.InvalidURL, errs.EmptyInput:
		return http.StatusBadRequest
	case errs.NetworkError, errs.TooManyRedirects:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
