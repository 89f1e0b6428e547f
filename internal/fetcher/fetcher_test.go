package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"newsnow_bot/internal/config"
	"newsnow_bot/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	lastURL    string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastURL = req.URL.String()
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func apiSettings() config.Static {
	return config.Static{S: &config.Settings{APIURL: "http://news.local"}}
}

func TestFetchAPI(t *testing.T) {
	zhihu := loadFixture(t, "../../testdata/zhihu.json")

	tests := []struct {
		name      string
		transport *mockTransport
		want      model.FetchResult
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: zhihu, statusCode: 200},
			want: model.FetchResult{
				Kind:   model.ResultOK,
				Source: "zhihu",
				Title:  "zhihu",
				Entries: []model.Entry{
					{Title: "如何看待今年的诺贝尔物理学奖？", URL: "https://www.zhihu.com/question/1"},
					{Title: "有哪些值得一读的科普书？", URL: "https://www.zhihu.com/question/2"},
					{Title: model.UntitledEntry, URL: "https://www.zhihu.com/question/3"},
					{Title: "没有链接的条目"},
				},
				UpdatedTime: "1760850000000",
			},
		},
		{
			name:      "title field preferred over id",
			transport: &mockTransport{body: `{"id":"zhihu","title":"知乎热榜","items":[{"title":"a"}]}`, statusCode: 200},
			want: model.FetchResult{
				Kind: model.ResultOK, Source: "zhihu", Title: "知乎热榜",
				Entries: []model.Entry{{Title: "a"}},
			},
		},
		{
			name:      "title falls back to source id",
			transport: &mockTransport{body: `{"items":[{"title":"a","url":"u"}]}`, statusCode: 200},
			want: model.FetchResult{
				Kind: model.ResultOK, Source: "zhihu", Title: "zhihu",
				Entries: []model.Entry{{Title: "a", URL: "u"}},
			},
		},
		{
			name:      "empty items",
			transport: &mockTransport{body: `{"items": []}`, statusCode: 200},
			want:      model.Empty("zhihu"),
		},
		{
			name:      "null items",
			transport: &mockTransport{body: `{"id":"zhihu","items": null}`, statusCode: 200},
			want:      model.Empty("zhihu"),
		},
		{
			name:      "http 500",
			transport: &mockTransport{body: "boom", statusCode: 500},
			want:      model.HTTPError("zhihu", 500),
		},
		{
			name:      "http 404",
			transport: &mockTransport{body: "not found", statusCode: 404},
			want:      model.HTTPError("zhihu", 404),
		},
		{
			name:      "network error",
			transport: &mockTransport{err: errors.New("dial tcp: connection refused")},
			want:      model.TransportError("zhihu", "dial tcp: connection refused"),
		},
		{
			name:      "timeout",
			transport: &mockTransport{err: context.DeadlineExceeded},
			want:      model.TransportError("zhihu", "request timed out"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport, apiSettings())
			got := f.Fetch(context.Background(), "zhihu", 15*time.Second)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("http://news.local/api/s?id=zhihu", tt.transport.lastURL); diff != "" {
				t.Errorf("request URL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchFormatErrors(t *testing.T) {
	bodies := map[string]string{
		"not json":          "<html>oops</html>",
		"missing items":     `{"id":"zhihu"}`,
		"items not array":   `{"items": {"title": "x"}}`,
		"item not object":   `{"items": ["x"]}`,
		"top level array":   `[{"title": "x"}]`,
		"title wrong type":  `{"items": [{"title": 12}]}`,
		"truncated payload": `{"items": [{"title": "x"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f := New(&mockTransport{body: body, statusCode: 200}, apiSettings())
			got := f.Fetch(context.Background(), "zhihu", time.Second)
			if diff := cmp.Diff(model.ResultFormatError, got.Kind); diff != "" {
				t.Errorf("kind mismatch (-want +got):\n%s", diff)
			}
			if got.Reason == "" {
				t.Error("expected a reason")
			}
		})
	}
}

func TestFetchNoAPIURL(t *testing.T) {
	transport := &mockTransport{statusCode: 200}
	f := New(transport, config.Static{})
	got := f.Fetch(context.Background(), "zhihu", time.Second)

	if diff := cmp.Diff(model.TransportError("zhihu", config.ErrNoAPIURL.Error()), got); diff != "" {
		t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
	}
	if transport.lastURL != "" {
		t.Errorf("expected no request, got %s", transport.lastURL)
	}
}

func TestFetchAgainstServer(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/s" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"36kr","items":[{"title":"first","url":"https://36kr.com/p/1"}]}`)
	}))
	defer srv.Close()

	f := New(srv.Client(), config.Static{S: &config.Settings{APIURL: srv.URL}})
	got := f.Fetch(context.Background(), "36kr", 5*time.Second)

	want := model.OK("36kr", "36kr", []model.Entry{{Title: "first", URL: "https://36kr.com/p/1"}})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("36kr", gotQuery); diff != "" {
		t.Errorf("id query mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(srv.Client(), config.Static{S: &config.Settings{APIURL: srv.URL}})
	got := f.Fetch(context.Background(), "slow", 50*time.Millisecond)

	if diff := cmp.Diff(model.TransportError("slow", "request timed out"), got); diff != "" {
		t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchFeed(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	settings := config.Static{S: &config.Settings{
		Feeds: map[string]string{"hn": "https://news.ycombinator.com/rss"},
	}}

	tests := []struct {
		name      string
		transport *mockTransport
		want      model.FetchResult
	}{
		{
			name:      "rss feed",
			transport: &mockTransport{body: xml, statusCode: 200},
			want: model.OK("hn", "Hacker News", []model.Entry{
				{Title: "Show HN: A tiny SQLite-backed job queue", URL: "https://example.com/queue"},
				{Title: "Go 1.25 Release Notes", URL: "https://go.dev/doc/go1.25"},
				{Title: model.UntitledEntry, URL: "https://example.com/untitled"},
			}),
		},
		{
			name:      "empty channel",
			transport: &mockTransport{body: "<rss><channel><title>x</title></channel></rss>", statusCode: 200},
			want:      model.Empty("hn"),
		},
		{
			name:      "http error",
			transport: &mockTransport{statusCode: 502},
			want:      model.HTTPError("hn", 502),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport, settings)
			got := f.Fetch(context.Background(), "hn", time.Second)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("https://news.ycombinator.com/rss", tt.transport.lastURL); diff != "" {
				t.Errorf("request URL mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("not a feed", func(t *testing.T) {
		f := New(&mockTransport{body: "definitely not xml", statusCode: 200}, settings)
		got := f.Fetch(context.Background(), "hn", time.Second)
		if diff := cmp.Diff(model.ResultFormatError, got.Kind); diff != "" {
			t.Errorf("kind mismatch (-want +got):\n%s", diff)
		}
		if !strings.HasPrefix(got.Reason, "parse feed") {
			t.Errorf("unexpected reason %q", got.Reason)
		}
	})
}
