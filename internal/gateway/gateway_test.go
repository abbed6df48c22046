// internal/gateway/gateway_test.go
package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, name+" "+r.Method+" "+r.URL.Path)
	}))
}

func TestGatewayRoutesByPrefix(t *testing.T) {
	catalog, circulation, members := echo("catalog"), echo("circulation"), echo("membership")
	t.Cleanup(catalog.Close)
	t.Cleanup(circulation.Close)
	t.Cleanup(members.Close)

	r := chi.NewRouter()
	require.NoError(t, Mount(r, Upstreams{Catalog: catalog.URL, Circulation: circulation.URL, Membership: members.URL}, nil))
	gw := httptest.NewServer(r)
	t.Cleanup(gw.Close)

	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/catalog/books/B1", "catalog GET /books/B1"},
		{http.MethodPost, "/api/v1/circulation/loans", "circulation POST /loans"},
		{http.MethodGet, "/api/v1/members/accounts/42", "membership GET /accounts/42"},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, gw.URL+tt.path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(body))
	}

	resp, err := http.Get(gw.URL + "/api/v2/catalog/books")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatewayUpstreamDown(t *testing.T) {
	down := echo("gone")
	down.Close()

	r := chi.NewRouter()
	require.NoError(t, Mount(r, Upstreams{Catalog: down.URL, Circulation: down.URL, Membership: down.URL}, nil))
	gw := httptest.NewServer(r)
	t.Cleanup(gw.Close)

	resp, err := http.Get(gw.URL + "/api/v1/catalog/books")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestGatewayRequiresUpstreams(t *testing.T) {
	err := Mount(chi.NewRouter(), Upstreams{Catalog: "http://catalog"}, nil)
	assert.ErrorIs(t, err, ErrMissingUpstream)
}
