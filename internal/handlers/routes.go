package handlers

import (
	"net/http"

	"github.com/benvon/food-delivery/internal/apperr"
	"github.com/benvon/food-delivery/internal/middleware"
	"github.com/benvon/food-delivery/internal/request"
	"github.com/benvon/food-delivery/internal/validation"
	"github.com/gorilla/mux"
)

// Route group prefixes served by collaborator modules
const (
	PrefixAuth        = "/api/auth"
	PrefixRestaurants = "/api/restaurants"
	PrefixMenu        = "/api/menu"
	PrefixOrders      = "/api/orders"
	PrefixCart        = "/api/cart"
	PrefixAdmin       = "/api/admin"
	PrefixContact     = "/api/contact"

	// HealthPath is the liveness endpoint
	HealthPath = "/api/health"
)

// RoutePrefixes lists the route groups in mount order
var RoutePrefixes = []string{
	PrefixAuth,
	PrefixRestaurants,
	PrefixMenu,
	PrefixOrders,
	PrefixCart,
	PrefixAdmin,
	PrefixContact,
}

// RouteModule owns every route under one prefix. r is a subrouter already scoped to
// that prefix, so modules register paths relative to it.
type RouteModule interface {
	RegisterRoutes(r *mux.Router)
}

// RouteModuleFunc adapts a function to RouteModule
type RouteModuleFunc func(r *mux.Router)

// RegisterRoutes calls f(r)
func (f RouteModuleFunc) RegisterRoutes(r *mux.Router) {
	f(r)
}

// HandlerFunc is a handler that reports failure by returning an error instead of
// writing an error response itself
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn to http.Handler. A returned error is passed to the global error
// handler, which produces the response.
func Handle(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			middleware.Forward(w, r, err)
		}
	})
}

// Bind decodes the JSON body stored by the body parser into v and validates it
func Bind(r *http.Request, v any) error {
	if err := request.DecodeJSON(r, v); err != nil {
		return apperr.BadRequest(err, "request body must be a JSON object")
	}
	return validation.Struct(v)
}
