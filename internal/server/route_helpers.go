package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/tubeq/internal/handlers"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod dispatches on the request method. Unknown methods get a JSON
// 405 listing the allowed ones.
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	if handler, ok := routes[r.Method]; ok && handler != nil {
		handler(w, r)
		return
	}

	allowed := make([]string, 0, len(routes))
	for method, handler := range routes {
		if handler != nil {
			allowed = append(allowed, method)
		}
	}
	sort.Strings(allowed)

	w.Header().Set("Allow", strings.Join(allowed, ", "))
	handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// RouteCRUD routes GET/POST/PUT/DELETE; nil handlers are not allowed
func RouteCRUD(w http.ResponseWriter, r *http.Request, get, post, put, delete RouteHandler) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet:    get,
		http.MethodPost:   post,
		http.MethodPut:    put,
		http.MethodDelete: delete,
	})
}

// PathSuffixRouter checks if path ends with a specific suffix and routes to handler
type PathSuffixRouter struct {
	Suffix  string
	Handler RouteHandler
}

// RouteByPathSuffix routes requests under prefix by their trailing segment.
// Returns true if a route was matched and handled.
func RouteByPathSuffix(w http.ResponseWriter, r *http.Request, prefix string, routes []PathSuffixRouter) bool {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if !strings.HasPrefix(path, prefix) || len(path) <= len(prefix) {
		return false
	}

	rest := path[len(prefix):]
	for _, route := range routes {
		if strings.HasSuffix(rest, route.Suffix) {
			route.Handler(w, r)
			return true
		}
	}
	return false
}

// RouteResourceCollection handles standard list + create pattern
// GET -> list, POST -> create
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create RouteHandler) {
	RouteCRUD(w, r, list, create, nil, nil)
}

// RouteResourceItem handles standard get + update + delete pattern
// GET -> get, PUT -> update, DELETE -> delete
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, update, delete RouteHandler) {
	RouteCRUD(w, r, get, nil, update, delete)
}
