// internal/gateway/gateway.go

// Package gateway fronts the separately deployed services under one /api/v1
// prefix.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
)

var ErrMissingUpstream = errors.New("missing upstream URL")

// Upstreams names the base URL of each backend service.
type Upstreams struct {
	Catalog     string
	Circulation string
	Membership  string
}

// Mount proxies /api/v1/catalog, /api/v1/circulation and /api/v1/members to
// their upstreams with the prefix stripped.
func Mount(r chi.Router, up Upstreams, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	routes := []struct {
		prefix string
		target string
	}{
		{"/api/v1/catalog", up.Catalog},
		{"/api/v1/circulation", up.Circulation},
		{"/api/v1/members", up.Membership},
	}

	for _, route := range routes {
		if route.target == "" {
			return fmt.Errorf("%w for %s", ErrMissingUpstream, route.prefix)
		}
		target, err := url.Parse(route.target)
		if err != nil {
			return fmt.Errorf("parse upstream for %s: %w", route.prefix, err)
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		prefix := route.prefix
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WarnContext(r.Context(), "upstream unavailable", "prefix", prefix, "error", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		}

		r.Mount(prefix, http.StripPrefix(prefix, proxy))
	}
	return nil
}
