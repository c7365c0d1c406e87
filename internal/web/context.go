package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/adminjobs/internal/core"
	mw "github.com/JonMunkholm/adminjobs/internal/web/middleware"
)

// tenantOf returns the tenant resolved by the Tenant middleware.
func tenantOf(r *http.Request) core.Tenant {
	return mw.TenantFrom(r.Context())
}

// entityParam returns the {entity} path segment as an entity kind.
func entityParam(r *http.Request) core.EntityKind {
	return core.EntityKind(chi.URLParam(r, "entity"))
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
