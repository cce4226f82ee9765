package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sites/site-1/metrics", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, from.Format(time.RFC3339), r.URL.Query().Get("from"))
		assert.Equal(t, to.Format(time.RFC3339), r.URL.Query().Get("to"))

		_ = json.NewEncoder(w).Encode(Metrics{
			TotalSessions: 5000,
			AISessions:    420,
			AIConversions: 17,
			VoiceQueries:  80,
			VoiceMentions: 12,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	m, err := c.Fetch(context.Background(), "site-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 5000, m.TotalSessions)
	assert.Equal(t, 420, m.AISessions)
	assert.Equal(t, 17, m.AIConversions)
	assert.Equal(t, 80, m.VoiceQueries)
	assert.Equal(t, 12, m.VoiceMentions)
}

func TestFetchNoData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	_, err := c.Fetch(context.Background(), "site-1", time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	_, err := c.Fetch(context.Background(), "site-1", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}
