// Package api exposes the ledger over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes attaches the ledger endpoints to router.
func RegisterRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/transactions", h.UploadTransactions).Methods(http.MethodPost)
	router.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	router.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	router.HandleFunc("/report", h.Report).Methods(http.MethodGet)
	router.HandleFunc("/report/verify", h.Verify).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
}

// NewRouter builds the full handler chain.
func NewRouter(h *Handler) http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	RegisterRoutes(router, h)

	// Apply middleware
	return Recovery(RequestID(Logger(router)))
}
