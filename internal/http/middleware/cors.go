package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-ID"
	corsMaxAge         = "600"
)

// corsCandidateMethods are checked against the route table, in header order.
var corsCandidateMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// CORS lets browser clients on the allowlisted origins call the booking API.
// "*" echoes back any Origin. Allowed methods come from the route table, so a
// preflight only advertises what the requested path actually serves.
type CORS struct {
	allowAny bool
	allow    map[string]struct{}
	routes   chi.Routes
}

func NewCORS(allowedOrigins []string) *CORS {
	c := &CORS{allow: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			c.allowAny = true
		default:
			c.allow[origin] = struct{}{}
		}
	}
	return c
}

// Bind attaches the route table. Call it once every route is registered and
// before the router serves traffic.
func (c *CORS) Bind(routes chi.Routes) {
	c.routes = routes
}

// AllowedMethods lists the methods the bound routes serve for path, ending
// with OPTIONS. It returns nil when nothing matches.
func (c *CORS) AllowedMethods(path string) []string {
	if c.routes == nil {
		return nil
	}
	var methods []string
	for _, method := range corsCandidateMethods {
		if c.routes.Match(chi.NewRouteContext(), method, path) {
			methods = append(methods, method)
		}
	}
	if len(methods) == 0 {
		return nil
	}
	return append(methods, http.MethodOptions)
}

func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && c.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			if methods := c.AllowedMethods(r.URL.Path); len(methods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			}
			w.Header().Set("Access-Control-Max-Age", corsMaxAge)
		}

		if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) originAllowed(origin string) bool {
	if c.allowAny {
		return true
	}
	_, ok := c.allow[origin]
	return ok
}
