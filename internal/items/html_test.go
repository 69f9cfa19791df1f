package items_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabwarden/tabwarden/internal/httpclient"
	"github.com/tabwarden/tabwarden/internal/items"
)

const assignedPage = `<html><body>
<a data-hovercard-type="pull_request" href="/acme/core/pull/42">Fix bug</a>
<a data-hovercard-type="pull_request" href="/globex/web/pull/7">Add feature</a>
<a data-hovercard-type="issue" href="/acme/core/issues/9">Not a PR</a>
<a href="/acme/core/pull/1">No hovercard attr</a>
</body></html>`

const reviewPage = `<html><body>
<a data-hovercard-type="pull_request" href="/acme/core/pull/42">Fix bug</a>
<a data-hovercard-type="pull_request" href="/acme/api/pull/3">Refactor</a>
</body></html>`

func newDashboardServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/pulls/assigned":
			_, _ = w.Write([]byte(assignedPage))
		case "/pulls/review-requested":
			_, _ = w.Write([]byte(reviewPage))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return server, &hits
}

func TestHTMLSourceFetchBoth(t *testing.T) {
	t.Parallel()
	server, hits := newDashboardServer(t)

	source := items.NewHTMLSource(httpclient.NewDefaultClient(5*time.Second), server.URL)
	got, err := source.Fetch(context.Background(), items.FilterModeBoth, "")
	require.NoError(t, err)

	// 42 appears on both pages but is deduplicated
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), hits.Load(), "both dashboard pages queried")

	first := got[0]
	assert.Equal(t, server.URL+"/acme/core/pull/42", first.URL)
	assert.Equal(t, "Fix bug", first.Title)
	assert.Equal(t, 42, first.Number)
	assert.Equal(t, "core", first.Repository)
	assert.Equal(t, "acme", first.Origin)
}

func TestHTMLSourceFetchSingleMode(t *testing.T) {
	t.Parallel()
	server, hits := newDashboardServer(t)

	source := items.NewHTMLSource(httpclient.NewDefaultClient(5*time.Second), server.URL)
	got, err := source.Fetch(context.Background(), items.FilterModeAssigned, "")
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), hits.Load(), "only the assigned page queried")
}

func TestHTMLSourceOriginFilter(t *testing.T) {
	t.Parallel()
	server, _ := newDashboardServer(t)

	source := items.NewHTMLSource(httpclient.NewDefaultClient(5*time.Second), server.URL)
	got, err := source.Fetch(context.Background(), items.FilterModeBoth, "acme")
	require.NoError(t, err)

	require.Len(t, got, 2)
	for _, it := range got {
		assert.Equal(t, "acme", it.Origin)
	}
}

func TestHTMLSourceFetchFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)

	source := items.NewHTMLSource(httpclient.NewDefaultClient(5*time.Second), server.URL)
	_, err := source.Fetch(context.Background(), items.FilterModeAssigned, "")
	assert.Error(t, err)
}
