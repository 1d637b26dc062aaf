package placesearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"

	"github.com/placepin/importer/internal/resilience"
)

func newTestClient(srv *httptest.Server, opts ...Option) Client {
	opts = append([]Option{WithBaseURL(srv.URL)}, opts...)
	c := NewClient(opts...).(*httpClient)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestSearch_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "420 North 20th Street, Birmingham, AL", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"display_name": "Wells Fargo Tower, Birmingham, AL", "lat": "33.5186", "lon": "-86.8104"},
			{"display_name": "Birmingham, AL", "lat": "33.52", "lon": "-86.80"}
		]`)
	}))
	defer srv.Close()

	hits, err := newTestClient(srv).Search(context.Background(), "420 North 20th Street, Birmingham, AL")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Wells Fargo Tower, Birmingham, AL", hits[0].DisplayName)
	assert.InDelta(t, 33.5186, hits[0].Latitude, 0.0001)
	assert.InDelta(t, -86.8104, hits[0].Longitude, 0.0001)
}

func TestSearch_SkipsUnparseableCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"display_name": "bad", "lat": "not-a-number", "lon": "-86.80"},
			{"display_name": "good", "lat": "33.52", "lon": "-86.80"}
		]`)
	}))
	defer srv.Close()

	hits, err := newTestClient(srv).Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "good", hits[0].DisplayName)
}

func TestSearch_ThrottledStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, resilience.IsThrottled(err))
}

func TestSearch_SendsViewboxAndEmail(t *testing.T) {
	var got map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	bounds := geom.NewBounds(geom.XY)
	bounds.Set(-125.0, 24.5, -66.9, 49.5)

	_, err := newTestClient(srv, WithViewbox(bounds), WithEmail("ops@example.com")).
		Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "-125.000000,24.500000,-66.900000,49.500000", got["viewbox"][0])
	assert.Equal(t, "ops@example.com", got["email"][0])
}
