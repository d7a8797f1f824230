package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket progress feed
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Workpapers
	mux.HandleFunc("/api/workpapers", s.handleWorkpapersRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/workpapers/", s.handleWorkpaperRoutes) // /{id} and subpaths
	mux.HandleFunc("/api/seeds", s.app.WorkpaperHandler.ListSeedsHandler)

	// API routes - Analysis runs
	mux.HandleFunc("/api/runs/", s.app.AnalysisHandler.GetRunHandler) // GET /{id}

	// API routes - Variables (API keys and other secrets)
	mux.HandleFunc("/api/variables", s.app.VariablesHandler.ListVariablesHandler)
	mux.HandleFunc("/api/variables/", s.handleVariableRoutes) // GET/PUT/DELETE /{key}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleWorkpapersRoute routes /api/workpapers requests (list and create)
func (s *Server) handleWorkpapersRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.WorkpaperHandler.ListWorkpapersHandler,
		s.app.WorkpaperHandler.CreateWorkpaperHandler,
	)
}

// handleWorkpaperRoutes routes /api/workpapers/{id} requests and subpaths.
// Handlers enforce their own methods, suffix routing only picks the target.
func (s *Server) handleWorkpaperRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/workpapers/{id}/analyze
	if strings.HasSuffix(path, "/analyze") {
		s.app.AnalysisHandler.StartAnalysisHandler(w, r)
		return
	}

	// GET /api/workpapers/{id}/runs
	if strings.HasSuffix(path, "/runs") {
		s.app.AnalysisHandler.ListRunsHandler(w, r)
		return
	}

	// GET /api/workpapers/{id}/report
	if strings.HasSuffix(path, "/report") {
		s.app.ReportHandler.GetReportHandler(w, r)
		return
	}

	// GET/DELETE /api/workpapers/{id}
	RouteResourceItem(w, r,
		s.app.WorkpaperHandler.GetWorkpaperHandler,
		nil,
		s.app.WorkpaperHandler.DeleteWorkpaperHandler,
	)
}

// handleVariableRoutes routes /api/variables/{key} requests
func (s *Server) handleVariableRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.VariablesHandler.GetVariableHandler,
		s.app.VariablesHandler.UpdateVariableHandler,
		s.app.VariablesHandler.DeleteVariableHandler,
	)
}
