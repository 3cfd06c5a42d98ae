package server

import (
	"net/http"

	"github.com/bobmcallan/capscan/internal/common"
)

// registerRoutes sets up all viewer routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Market data
	mux.HandleFunc("/api/markets", s.handleMarkets)
	mux.HandleFunc("/api/categories", s.handleCategories)
	mux.HandleFunc("/api/charts/category-1m.png", s.handleCategoryChart)
	mux.HandleFunc("/api/charts/categories.png", s.handleCategoryPie)

	// Refresh
	mux.HandleFunc("/api/refresh", s.handleRefresh)

	// Dashboard
	mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.VersionInfo())
}
