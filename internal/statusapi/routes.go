package statusapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures the read-only status routes. Every route is
// registered on the root router so a write to a known path gets 405.
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handler.MethodNotAllowed)

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	r.HandleFunc(apiPrefix+"/state", handler.GetState).Methods("GET")
	r.HandleFunc(apiPrefix+"/chart", handler.GetChart).Methods("GET")
	r.HandleFunc(apiPrefix+"/activity", handler.GetActivity).Methods("GET")

	return r
}

const apiPrefix = "/api/v1"
