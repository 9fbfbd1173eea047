// Package search scrapes public results pages to ground factual answers.
// Failures degrade to empty results; the caller falls back to a model-only
// answer.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type Result struct {
	Title   string
	Link    string
	Snippet string
	Source  string
}

type Service struct {
	client  *http.Client
	logger  *zap.Logger
	ddgURL  string
	bingURL string
}

func NewService(logger *zap.Logger) *Service {
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		ddgURL:  "https://lite.duckduckgo.com/lite/",
		bingURL: "https://www.bing.com/search",
	}
}

// Search queries DuckDuckGo Lite and falls back to Bing when it yields
// nothing. Never returns an error; an empty slice means no usable results.
func (s *Service) Search(ctx context.Context, query string, limit int) []Result {
	results, err := s.searchDuckDuckGo(ctx, query, limit)
	if err != nil {
		s.logger.Warn("DuckDuckGo search failed", zap.Error(err), zap.String("query", query))
	}

	if len(results) == 0 {
		results, err = s.searchBing(ctx, query, limit)
		if err != nil {
			s.logger.Warn("Bing search failed", zap.Error(err), zap.String("query", query))
		}
	}

	return results
}

func (s *Service) searchDuckDuckGo(ctx context.Context, query string, limit int) ([]Result, error) {
	doc, err := s.fetch(ctx, s.ddgURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find("tr.result-link, tr.result-snippet").Each(func(_ int, tr *goquery.Selection) {
		if tr.HasClass("result-link") {
			a := tr.Find("a").First()
			if a.Length() == 0 {
				return
			}
			results = append(results, Result{
				Title:  strings.TrimSpace(a.Text()),
				Link:   a.AttrOr("href", ""),
				Source: "DuckDuckGo",
			})
		} else if len(results) > 0 {
			results[len(results)-1].Snippet = strings.TrimSpace(tr.Text())
		}
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Service) searchBing(ctx context.Context, query string, limit int) ([]Result, error) {
	doc, err := s.fetch(ctx, s.bingURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find(".b_algo").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := sel.Find("h2 a").First()
		if title.Length() == 0 {
			return true
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(title.Text()),
			Link:    title.AttrOr("href", ""),
			Snippet: strings.TrimSpace(sel.Find(".b_caption p").First().Text()),
			Source:  "Bing",
		})
		return len(results) < limit
	})

	return results, nil
}

func (s *Service) fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// FormatForPrompt renders results as grounding context for an /ask prompt.
func FormatForPrompt(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Search results:\n\n")
	for i, r := range results {
		snippet := r.Snippet
		if len(snippet) > 300 {
			snippet = snippet[:297] + "..."
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n\n", i+1, r.Title, snippet, r.Link)
	}
	return b.String()
}
