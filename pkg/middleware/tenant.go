package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/cristata/pkg/contextkeys"
	"github.com/platinummonkey/cristata/pkg/httputil"
)

// TenantVar is the route variable naming the tenant
const TenantVar = "tenant"

// TenantMiddleware resolves the tenant from the route and rejects unknown
// tenants with a 404
func TenantMiddleware(known func(name string) bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := httputil.PathParam(r, TenantVar)
			if tenant == "" || !known(tenant) {
				httputil.WriteNotFound(w, "unknown tenant")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithTenant(r.Context(), tenant)))
		})
	}
}
