package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/seo-inspector/analyzer"
	"github.com/seo-optimizer/seo-inspector/fetcher"
	"github.com/seo-optimizer/seo-inspector/logging"
	"github.com/seo-optimizer/seo-inspector/middleware"
	"github.com/seo-optimizer/seo-inspector/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPage = `<!DOCTYPE html><html lang="en"><head>
<title>Upstream</title>
<meta name="description" content="A test page">
<link rel="canonical" href="/canonical">
</head><body><h1>Hello</h1><a href="/a">a</a><a href="https://other.org/">b</a></body></html>`

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<title>Gone</title>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	log := logging.Discard()
	if opts.Analyzer == nil {
		f := fetcher.New(fetcher.Config{MaxRedirects: 3}, log)
		opts.Analyzer = analyzer.New(f, log)
	}
	opts.Logger = log
	return NewRouter(opts)
}

func do(r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	r := newTestRouter(t, Options{})

	w := do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/", nil)
	body := decode(t, w)
	if body["name"] != ServiceName || body["version"] != Version {
		t.Errorf("index = %v", body)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("responses should carry a request id")
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	upstream := newUpstream(t)
	r := newTestRouter(t, Options{})

	t.Run("query", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/analyze?url="+url.QueryEscape(upstream.URL+"/moved"), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", w.Code, w.Body.String())
		}

		var analysis analyzer.Analysis
		if err := json.Unmarshal(w.Body.Bytes(), &analysis); err != nil {
			t.Fatal(err)
		}
		if analysis.URL != upstream.URL+"/page" || analysis.StatusCode != 200 {
			t.Errorf("analysis = %+v", analysis)
		}
		if len(analysis.RedirectChain) != 1 || analysis.RedirectChain[0] != upstream.URL+"/moved" {
			t.Errorf("chain = %v", analysis.RedirectChain)
		}
		if *analysis.SEO.Title != "Upstream" || *analysis.SEO.Canonical != upstream.URL+"/canonical" {
			t.Errorf("seo = %+v", analysis.SEO)
		}
		if len(analysis.SEO.Links.Internal) != 1 || len(analysis.SEO.Links.External) != 1 {
			t.Errorf("links = %+v", analysis.SEO.Links)
		}
	})

	t.Run("json body", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/analyze", gin.H{"url": upstream.URL + "/page"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", w.Code, w.Body.String())
		}
	})

	t.Run("error page is analyzed", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/analyze?url="+url.QueryEscape(upstream.URL+"/missing"), nil)
		body := decode(t, w)
		if w.Code != http.StatusOK || body["status_code"] != float64(404) {
			t.Errorf("status = %d body %v", w.Code, body)
		}
	})

	t.Run("missing url", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/analyze", nil)
		body := decode(t, w)
		if w.Code != http.StatusBadRequest || body["kind"] != "invalid_url" {
			t.Errorf("status = %d body %v", w.Code, body)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/analyze?url=ftp://example.com", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("redirect loop", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/analyze?url="+url.QueryEscape(upstream.URL+"/loop"), nil)
		body := decode(t, w)
		if w.Code != http.StatusBadGateway || body["kind"] != "too_many_redirects" {
			t.Errorf("status = %d body %v", w.Code, body)
		}
		chain, _ := body["redirect_chain"].([]any)
		if len(chain) != 3 || chain[0] != upstream.URL+"/loop" {
			t.Errorf("redirect_chain = %v", body["redirect_chain"])
		}
	})
}

func TestFetchEndpoint(t *testing.T) {
	upstream := newUpstream(t)
	r := newTestRouter(t, Options{})

	w := do(r, http.MethodGet, "/api/fetch?url="+url.QueryEscape(upstream.URL+"/moved"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["url"] != upstream.URL+"/page" || body["status_code"] != float64(200) {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["content"]; ok {
		t.Error("content must not be returned by the fetch endpoint")
	}

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	w = do(r, http.MethodGet, "/api/fetch?url="+url.QueryEscape(deadURL), nil)
	body = decode(t, w)
	if w.Code != http.StatusBadGateway || body["kind"] != "network_error" {
		t.Errorf("status = %d body %v", w.Code, body)
	}

	w = do(r, http.MethodGet, "/api/fetch?url="+url.QueryEscape(upstream.URL+"/loop"), nil)
	body = decode(t, w)
	chain, _ := body["redirect_chain"].([]any)
	if w.Code != http.StatusBadGateway || len(chain) != 3 {
		t.Errorf("status = %d body %v", w.Code, body)
	}
}

func TestParseEndpoint(t *testing.T) {
	r := newTestRouter(t, Options{})

	t.Run("ok", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/parse", gin.H{
			"html":     `<title>Hi</title><h1>A</h1><h1>B</h1><a href="/x">x</a><a href="https://other.com">y</a>`,
			"base_url": "https://example.com",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", w.Code, w.Body.String())
		}
		var facts analyzer.SEOFacts
		if err := json.Unmarshal(w.Body.Bytes(), &facts); err != nil {
			t.Fatal(err)
		}
		if *facts.Title != "Hi" || len(facts.H1) != 2 {
			t.Errorf("facts = %+v", facts)
		}
		if len(facts.Links.Internal) != 1 || facts.Links.Internal[0] != "https://example.com/x" {
			t.Errorf("internal = %v", facts.Links.Internal)
		}
	})

	t.Run("empty html", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/parse", gin.H{"html": ""})
		body := decode(t, w)
		if w.Code != http.StatusBadRequest || body["detail"] != "html field is required" || body["kind"] != "empty_input" {
			t.Errorf("status = %d body %v", w.Code, body)
		}
	})

	t.Run("invalid base", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/parse", gin.H{"html": "<p>x</p>", "base_url": "nope"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestStatisticsEndpoint(t *testing.T) {
	storage, err := stats.NewStorage(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer storage.Shutdown()

	t.Run("production", func(t *testing.T) {
		r := newTestRouter(t, Options{Stats: storage})
		do(r, http.MethodPost, "/api/parse", gin.H{"html": "<p>x</p>"})
		do(r, http.MethodPost, "/api/parse", gin.H{"html": ""})

		body := decode(t, do(r, http.MethodGet, "/api/statistics", nil))
		current, _ := body["current_month"].(map[string]any)
		if current["parses"] != float64(2) || current["failures"] != float64(1) {
			t.Errorf("current = %v", current)
		}
		if _, ok := body["months"]; ok {
			t.Error("history must only be exposed in dev mode")
		}
	})

	t.Run("dev mode", func(t *testing.T) {
		r := newTestRouter(t, Options{Stats: storage, DevMode: true})
		body := decode(t, do(r, http.MethodGet, "/api/statistics", nil))
		if months, ok := body["months"].(map[string]any); !ok || len(months) != 1 {
			t.Errorf("months = %v", body["months"])
		}
	})

	t.Run("disabled", func(t *testing.T) {
		r := newTestRouter(t, Options{})
		if w := do(r, http.MethodGet, "/api/statistics", nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestParseEndpointBodyLimit(t *testing.T) {
	r := newTestRouter(t, Options{MaxBodyBytes: 64})

	w := do(r, http.MethodPost, "/api/parse", gin.H{"html": strings.Repeat("<p>word</p>", 20)})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d body %s, want 413", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/api/parse", gin.H{"html": "<p>x</p>"}); w.Code != http.StatusOK {
		t.Errorf("small body status = %d", w.Code)
	}
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	r := newTestRouter(t, Options{RateLimiter: middleware.NewRateLimiter(0.001, 1)})

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
		req.RemoteAddr = "192.0.2.5:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("198.51.100.1"); code == http.StatusTooManyRequests {
		t.Fatalf("first request was rate limited")
	}
	if code := send("198.51.100.2"); code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", code)
	}
}

func TestRateLimitedAPI(t *testing.T) {
	r := newTestRouter(t, Options{RateLimiter: middleware.NewRateLimiter(0.001, 1)})

	if w := do(r, http.MethodPost, "/api/parse", gin.H{"html": "<p>x</p>"}); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/parse", gin.H{"html": "<p>x</p>"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", w.Code)
	}
	if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health must not be rate limited, got %d", w.Code)
	}
}
