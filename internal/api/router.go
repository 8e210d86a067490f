package api

import (
	"net/http"

	"api-studio/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Design endpoints
	api.HandleFunc("/designs", h.CreateDesign).Methods("POST")
	api.HandleFunc("/designs", h.ListDesigns).Methods("GET")
	api.HandleFunc("/designs/{id}", h.GetDesign).Methods("GET")
	api.HandleFunc("/designs/{id}", h.UpdateDesign).Methods("PUT")
	api.HandleFunc("/designs/{id}", h.DeleteDesign).Methods("DELETE")

	// Editing session support
	api.HandleFunc("/designs/{id}/editable", h.GetEditableDesign).Methods("GET")
	api.HandleFunc("/designs/{id}/activity", h.GetActivity).Methods("GET")
	api.HandleFunc("/designs/{id}/commands", h.GetCommandsSince).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket routes
	r.HandleFunc("/ws/designs/{id}", h.HandleDesignWebSocket)

	return r
}
