// Package fetcher retrieves trending items from the news API and RSS feeds
// and normalizes every outcome into a model.FetchResult.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newsnow_bot/internal/config"
	"newsnow_bot/internal/model"
)

const (
	apiPath      = "/api/s"
	maxBodyBytes = 5 * 1024 * 1024
	userAgent    = "NewsNowBot/1.0"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher issues single, non-retried fetches for a source id.
type Fetcher struct {
	client   HTTPClient
	settings config.Provider
}

// New creates a Fetcher that reads its endpoints from the current settings.
func New(client HTTPClient, settings config.Provider) *Fetcher {
	return &Fetcher{
		client:   client,
		settings: settings,
	}
}

// apiResponse is the success body of GET /api/s.
type apiResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	UpdatedTime json.RawMessage `json:"updatedTime"`
	Items       json.RawMessage `json:"items"`
}

type apiItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Fetch retrieves source once. A timeout <= 0 leaves ctx's deadline alone.
// Sources mapped in the settings' feeds section are read as RSS/Atom.
func (f *Fetcher) Fetch(ctx context.Context, source string, timeout time.Duration) model.FetchResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s := f.settings.Current()
	if feedURL, ok := s.FeedURL(source); ok {
		return f.fetchFeed(ctx, source, feedURL)
	}
	if err := s.RequireAPIURL(); err != nil {
		return model.TransportError(source, err.Error())
	}
	return f.fetchAPI(ctx, source, s.APIURL+apiPath+"?"+url.Values{"id": {source}}.Encode())
}

func (f *Fetcher) fetchAPI(ctx context.Context, source, endpoint string) model.FetchResult {
	body, res, ok := f.get(ctx, source, endpoint)
	if !ok {
		return res
	}

	var data apiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return model.FormatError(source, fmt.Sprintf("decode response: %v", err))
	}
	// An absent key is malformed; a present null counts as no items.
	if len(data.Items) == 0 {
		return model.FormatError(source, `response has no "items" field`)
	}
	var items []apiItem
	if err := json.Unmarshal(data.Items, &items); err != nil {
		return model.FormatError(source, fmt.Sprintf("decode items: %v", err))
	}
	if len(items) == 0 {
		return model.Empty(source)
	}

	entries := make([]model.Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, model.NewEntry(it.Title, it.URL))
	}

	title := firstNonEmpty(data.Title, data.ID, source)
	result := model.OK(source, title, entries)
	result.UpdatedTime = strings.Trim(string(bytes.TrimSpace(data.UpdatedTime)), `"`)
	return result
}

func (f *Fetcher) fetchFeed(ctx context.Context, source, feedURL string) model.FetchResult {
	body, res, ok := f.get(ctx, source, feedURL)
	if !ok {
		return res
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return model.FormatError(source, fmt.Sprintf("parse feed: %v", err))
	}
	if len(feed.Items) == 0 {
		return model.Empty(source)
	}

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		entries = append(entries, model.NewEntry(it.Title, it.Link))
	}

	result := model.OK(source, firstNonEmpty(strings.TrimSpace(feed.Title), source), entries)
	if feed.UpdatedParsed != nil {
		result.UpdatedTime = feed.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return result
}

// get performs the request and reads the body. When ok is false, res holds
// the failure to report.
func (f *Fetcher) get(ctx context.Context, source, endpoint string) (body []byte, res model.FetchResult, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, model.TransportError(source, fmt.Sprintf("create request: %v", err)), false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.TransportError(source, transportReason(err)), false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.HTTPError(source, resp.StatusCode), false
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, model.TransportError(source, transportReason(err)), false
	}
	return body, model.FetchResult{}, true
}

func transportReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	}
	return err.Error()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
