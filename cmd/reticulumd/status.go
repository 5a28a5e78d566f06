package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// newStatusRouter builds the read-only observability surface mentioned in
// spec.md §6.1: registered interfaces, path-table size, active link count.
// It is intentionally the only HTTP surface the daemon exposes — no RPC,
// no mutation, matching spec.md §1's "peripheral management" out-of-scope line.
func newStatusRouter(h *Host) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Status())
	})

	return r
}
