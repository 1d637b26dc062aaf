package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(Options{Timeout: 5 * time.Second, MaxRetries: 2})
}

// largeBody pads content past the script-rendered size threshold.
func largeBody(content string) string {
	return content + strings.Repeat(" filler text for realistic page size.", 80)
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, largeBody("<html><body>420 North 20th Street</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "420 North 20th Street")
}

func TestFetch_RetriesOn500ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, largeBody("<html>content</html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "content")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_404IsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestFetch_InvalidURL(t *testing.T) {
	f := newTestFetcher()

	for _, bad := range []string{"", "not a url", "/relative/path", "example.com"} {
		_, err := f.Fetch(context.Background(), bad)
		assert.Error(t, err, bad)
	}
}

func TestFetch_ScriptRenderedPageFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html><body><noscript>You need to enable JavaScript to run this app.</noscript><div id="root"></div></body></html>`)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script-rendered")
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher().Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestLooksScriptRendered(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty", "", true},
		{"whitespace only", "   \n\t  ", true},
		{"short with noscript", `<noscript>enable javascript</noscript>`, true},
		{"short with empty root", `<div id="root"></div>`, true},
		{"challenge page", "Just a moment... checking your browser", true},
		{"short but real content", "420 North 20th Street, Birmingham, AL 35203", false},
		{"long page", strings.Repeat("real server-rendered content ", 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksScriptRendered(tt.body))
		})
	}
}
