package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/logging"
)

// Headers carrying the caller's tenant context. Resolving them from a
// session or token is the job of whatever gateway sits in front.
const (
	HeaderOrganization = "X-Organization-ID"
	HeaderUser         = "X-User-ID"
)

type tenantKey struct{}

// Tenant resolves the organization and requesting user from request headers.
// Requests without an organization are rejected with 400.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := core.Tenant{
			OrganizationID: strings.TrimSpace(r.Header.Get(HeaderOrganization)),
			RequestedBy:    strings.TrimSpace(r.Header.Get(HeaderUser)),
		}
		if !t.Valid() {
			writeError(w, http.StatusBadRequest, core.MapError(core.ErrMissingTenant))
			return
		}

		ctx := WithTenant(r.Context(), t)
		ctx = logging.WithOrganization(ctx, t.OrganizationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithTenant stores t on ctx.
func WithTenant(ctx context.Context, t core.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// TenantFrom returns the tenant stored by the Tenant middleware. The zero
// Tenant is returned when none is present.
func TenantFrom(ctx context.Context) core.Tenant {
	t, _ := ctx.Value(tenantKey{}).(core.Tenant)
	return t
}
