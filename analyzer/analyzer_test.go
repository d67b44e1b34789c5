package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"runtime"
	"sync"
	"testing"

	"github.com/seo-optimizer/seo-inspector/errs"
	"github.com/seo-optimizer/seo-inspector/fetcher"
	"github.com/seo-optimizer/seo-inspector/logging"
)

type mockFetcher struct {
	result *fetcher.Result
	err    error
	calls  int
}

func (m *mockFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Result, error) {
	m.calls++
	if m.result == nil {
		return &fetcher.Result{URL: rawURL, RedirectChain: []string{}}, m.err
	}
	return m.result, m.err
}

func TestAnalyze(t *testing.T) {
	mock := &mockFetcher{result: &fetcher.Result{
		URL:           "https://www.example.com/final",
		StatusCode:    http.StatusOK,
		RedirectChain: []string{"http://example.com/"},
		ContentType:   "text/html",
		Content:       []byte(`<title>Welcome</title><a href="/a">a</a><a href="https://elsewhere.net/">b</a>`),
	}}

	a := New(mock, logging.Discard())
	analysis, err := a.Analyze(context.Background(), "http://example.com/")
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if analysis.URL != "https://www.example.com/final" || analysis.StatusCode != 200 {
		t.Errorf("unexpected analysis header: %+v", analysis)
	}
	if !reflect.DeepEqual(analysis.RedirectChain, []string{"http://example.com/"}) {
		t.Errorf("chain = %v", analysis.RedirectChain)
	}
	if *analysis.SEO.Title != "Welcome" {
		t.Errorf("title = %q", *analysis.SEO.Title)
	}
	// Links resolve against the final URL, not the requested one.
	if !reflect.DeepEqual(analysis.SEO.Links.Internal, []string{"https://www.example.com/a"}) {
		t.Errorf("internal = %q", analysis.SEO.Links.Internal)
	}
	if !reflect.DeepEqual(analysis.SEO.Links.External, []string{"https://elsewhere.net/"}) {
		t.Errorf("external = %q", analysis.SEO.Links.External)
	}
}

func TestAnalyzeFetchFailure(t *testing.T) {
	kinds := []errs.Kind{errs.InvalidURL, errs.NetworkError, errs.TooManyRedirects}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			mock := &mockFetcher{err: errs.New(kind, "boom", nil)}
			analysis, err := New(mock, logging.Discard()).Analyze(context.Background(), "https://example.com")
			if analysis == nil || analysis.SEO != nil {
				t.Fatalf("expected a partial analysis without facts, got %+v", analysis)
			}
			if errs.KindOf(err) != kind {
				t.Errorf("kind = %v, want %v", errs.KindOf(err), kind)
			}
		})
	}
}

func TestAnalyzeFailureKeepsRedirectChain(t *testing.T) {
	mock := &mockFetcher{
		result: &fetcher.Result{
			URL:           "https://example.com/a",
			RedirectChain: []string{"https://example.com/a", "https://example.com/b"},
		},
		err: errs.New(errs.TooManyRedirects, "stopped after 2 redirects", nil),
	}

	analysis, err := New(mock, logging.Discard()).Analyze(context.Background(), "https://example.com/a")
	if !errs.Is(err, errs.TooManyRedirects) {
		t.Fatalf("expected TooManyRedirects, got %v", err)
	}
	want := []string{"https://example.com/a", "https://example.com/b"}
	if !reflect.DeepEqual(analysis.RedirectChain, want) {
		t.Errorf("chain = %v, want %v", analysis.RedirectChain, want)
	}
	if analysis.StatusCode != 0 || analysis.SEO != nil {
		t.Errorf("unexpected partial analysis: %+v", analysis)
	}
}

func TestAnalyzeErrorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<html><head><title>Not Found</title></head><body><h1>Page missing</h1></body></html>`))
	}))
	defer srv.Close()

	a := New(fetcher.New(fetcher.Config{}, logging.Discard()), logging.Discard())
	analysis, err := a.Analyze(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if analysis.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", analysis.StatusCode)
	}
	if *analysis.SEO.Title != "Not Found" || analysis.SEO.H1[0] != "Page missing" {
		t.Errorf("error page should still be analyzed: %+v", analysis.SEO)
	}
}

func TestAnalyzeRedirectedPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<title>New</title><a href="/next">next</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := New(fetcher.New(fetcher.Config{}, logging.Discard()), logging.Discard())
	analysis, err := a.Analyze(context.Background(), srv.URL+"/old")
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if analysis.URL != srv.URL+"/new" {
		t.Errorf("url = %q", analysis.URL)
	}
	if !reflect.DeepEqual(analysis.RedirectChain, []string{srv.URL + "/old"}) {
		t.Errorf("chain = %v", analysis.RedirectChain)
	}
	if !reflect.DeepEqual(analysis.SEO.Links.Internal, []string{srv.URL + "/next"}) {
		t.Errorf("internal = %q", analysis.SEO.Links.Internal)
	}
}

func TestAnalyzeMarkup(t *testing.T) {
	mock := &mockFetcher{}
	a := New(mock, logging.Discard())

	t.Run("empty input", func(t *testing.T) {
		for _, in := range []string{"", "  \n\t "} {
			if _, err := a.AnalyzeMarkup(in, "https://example.com"); !errs.Is(err, errs.EmptyInput) {
				t.Errorf("AnalyzeMarkup(%q) error = %v, want EmptyInput", in, err)
			}
		}
	})

	t.Run("invalid base", func(t *testing.T) {
		if _, err := a.AnalyzeMarkup("<p>x</p>", "not a url"); !errs.Is(err, errs.InvalidURL) {
			t.Errorf("error = %v, want InvalidURL", err)
		}
	})

	t.Run("no base", func(t *testing.T) {
		facts, err := a.AnalyzeMarkup("<title>Offline</title>", "")
		if err != nil {
			t.Fatalf("AnalyzeMarkup() error: %v", err)
		}
		if *facts.Title != "Offline" {
			t.Errorf("title = %q", *facts.Title)
		}
	})

	if mock.calls != 0 {
		t.Errorf("markup analysis must not fetch, got %d calls", mock.calls)
	}
}

func TestConcurrentAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<title>%s</title><p>some words on the page</p><a href="/x">x</a>`, r.URL.Path)
	}))
	defer srv.Close()

	a := New(fetcher.New(fetcher.Config{}, logging.Discard()), logging.Discard())

	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	const workers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/page-%d", i)
			analysis, err := a.Analyze(context.Background(), srv.URL+path)
			if err != nil {
				errCh <- err
				return
			}
			if *analysis.SEO.Title != path {
				errCh <- fmt.Errorf("title = %q, want %q", *analysis.SEO.Title, path)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}

	runtime.ReadMemStats(&after)
	t.Logf("Total allocation: %d bytes across %d analyses", after.TotalAlloc-before.TotalAlloc, workers)
	t.Logf("Number of GC runs: %d", after.NumGC-before.NumGC)
}
