package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const ddgFixture = `<html><body><table>
<tr class="result-link"><td><a href="https://go.dev">The Go Programming Language</a></td></tr>
<tr class="result-snippet"><td>Go is an open source programming language.</td></tr>
<tr class="result-link"><td><a href="https://go.dev/doc">Documentation</a></td></tr>
<tr class="result-snippet"><td>Learn how to use Go.</td></tr>
<tr class="result-link"><td><a href="https://go.dev/blog">The Go Blog</a></td></tr>
<tr class="result-snippet"><td>News from the Go project.</td></tr>
</table></body></html>`

const bingFixture = `<html><body>
<li class="b_algo"><h2><a href="https://example.com/one">First Result</a></h2>
<div class="b_caption"><p>Snippet for the first result.</p></div></li>
<li class="b_algo"><h2><a href="https://example.com/two">Second Result</a></h2>
<div class="b_caption"><p>Snippet for the second result.</p></div></li>
</body></html>`

func newTestService(t *testing.T, ddgHandler, bingHandler http.HandlerFunc) *Service {
	t.Helper()

	ddg := httptest.NewServer(ddgHandler)
	t.Cleanup(ddg.Close)
	bing := httptest.NewServer(bingHandler)
	t.Cleanup(bing.Close)

	s := NewService(zap.NewNop())
	s.ddgURL = ddg.URL
	s.bingURL = bing.URL
	return s
}

func serveHTML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}
}

func serveStatus(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

func TestSearchParsesDuckDuckGo(t *testing.T) {
	s := newTestService(t, serveHTML(ddgFixture), serveStatus(http.StatusInternalServerError))

	results := s.Search(context.Background(), "golang", 5)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	first := results[0]
	if first.Title != "The Go Programming Language" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Link != "https://go.dev" {
		t.Errorf("link = %q", first.Link)
	}
	if first.Snippet != "Go is an open source programming language." {
		t.Errorf("snippet = %q", first.Snippet)
	}
	if first.Source != "DuckDuckGo" {
		t.Errorf("source = %q", first.Source)
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	s := newTestService(t, serveHTML(ddgFixture), serveStatus(http.StatusInternalServerError))

	if results := s.Search(context.Background(), "golang", 2); len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestSearchFallsBackToBing(t *testing.T) {
	s := newTestService(t, serveStatus(http.StatusServiceUnavailable), serveHTML(bingFixture))

	results := s.Search(context.Background(), "anything", 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 bing results, got %d", len(results))
	}
	if results[0].Source != "Bing" {
		t.Errorf("source = %q", results[0].Source)
	}
	if results[0].Title != "First Result" || results[1].Snippet != "Snippet for the second result." {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestSearchDegradesToEmpty(t *testing.T) {
	s := newTestService(t, serveStatus(http.StatusInternalServerError), serveStatus(http.StatusInternalServerError))

	if results := s.Search(context.Background(), "anything", 5); len(results) != 0 {
		t.Errorf("expected no results when both engines fail, got %+v", results)
	}
}

func TestFormatForPrompt(t *testing.T) {
	if got := FormatForPrompt(nil); got != "" {
		t.Errorf("empty results should format to empty string, got %q", got)
	}

	results := []Result{
		{Title: "First", Link: "https://a.example", Snippet: "short snippet"},
		{Title: "Second", Link: "https://b.example", Snippet: strings.Repeat("x", 400)},
	}
	got := FormatForPrompt(results)

	for _, want := range []string{"Search results:", "1. First", "short snippet", "2. Second", "https://b.example"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, strings.Repeat("x", 301)) {
		t.Error("long snippet was not truncated")
	}
}
