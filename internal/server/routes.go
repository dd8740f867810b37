package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Downloads
	mux.HandleFunc("/api/downloads", s.handleDownloadsRoute)   // GET (list), POST (enqueue)
	mux.HandleFunc("/api/downloads/", s.handleDownloadRoutes) // GET/DELETE /{id}, POST /{id}/cancel

	// API routes - Playlists
	mux.HandleFunc("/api/playlists", s.app.PlaylistHandler.EnqueueHandler)         // POST
	mux.HandleFunc("/api/playlists/entries", s.app.PlaylistHandler.EntriesHandler) // GET

	// API routes - Archive
	mux.HandleFunc("/api/archive", func(w http.ResponseWriter, r *http.Request) {
		RouteCRUD(w, r, s.app.ArchiveHandler.ListArchivedHandler, nil, nil, s.app.ArchiveHandler.PurgeArchiveHandler)
	})

	// API routes - Tags
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, s.app.TagHandler.ListTagsHandler, s.app.TagHandler.CreateTagHandler)
	})
	mux.HandleFunc("/api/tags/", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceItem(w, r, s.app.TagHandler.GetTagHandler, s.app.TagHandler.UpdateTagHandler, s.app.TagHandler.DeleteTagHandler)
	})

	// API routes - Option strategies
	mux.HandleFunc("/api/strategies", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, s.app.StrategyHandler.ListStrategiesHandler, s.app.StrategyHandler.CreateStrategyHandler)
	})
	mux.HandleFunc("/api/strategies/", s.handleStrategyRoutes)

	// API routes - Cookies
	mux.HandleFunc("/api/cookies", s.app.CookieHandler.UploadCookiesHandler)
	mux.HandleFunc("/api/cookies/info", s.app.CookieHandler.CookiesInfoHandler)

	// API routes - yt-dlp
	mux.HandleFunc("/api/ytdlp/version", s.app.YtDlpHandler.VersionHandler)
	mux.HandleFunc("/api/ytdlp/update", s.app.YtDlpHandler.UpdateHandler)

	// System routes
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	if s.app.Metrics != nil {
		mux.Handle("/metrics", s.app.Metrics.Handler())
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDownloadsRoute routes /api/downloads requests
func (s *Server) handleDownloadsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.DownloadHandler.ListHandler, s.app.DownloadHandler.EnqueueHandler)
}

// handleDownloadRoutes routes /api/downloads/{id} and /api/downloads/{id}/cancel
func (s *Server) handleDownloadRoutes(w http.ResponseWriter, r *http.Request) {
	if RouteByPathSuffix(w, r, "/api/downloads/", []PathSuffixRouter{
		{Suffix: "/cancel", Handler: s.app.DownloadHandler.CancelHandler},
	}) {
		return
	}

	RouteResourceItem(w, r, s.app.DownloadHandler.GetHandler, nil, s.app.DownloadHandler.DeleteHandler)
}

// handleStrategyRoutes routes /api/strategies/{id} and /api/strategies/priorities
func (s *Server) handleStrategyRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSuffix(r.URL.Path, "/") == "/api/strategies/priorities" {
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost: s.app.StrategyHandler.UpdatePrioritiesHandler,
		})
		return
	}

	RouteResourceItem(w, r,
		s.app.StrategyHandler.GetStrategyHandler,
		s.app.StrategyHandler.UpdateStrategyHandler,
		s.app.StrategyHandler.DeleteStrategyHandler,
	)
}
