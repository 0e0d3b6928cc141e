package route

import (
	"net/http"
	"os"
	"path/filepath"
	"visionapp/internal/config"
	"visionapp/internal/handler"
	"visionapp/internal/logger"
	"visionapp/internal/middleware"
	"visionapp/internal/repository"
	"visionapp/internal/service"
	"visionapp/internal/service/display"
	"visionapp/internal/service/storage"
	"visionapp/internal/service/websocket"
)

// staticDir holds the viewer pages.
var staticDir = "static"

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join(staticDir, filepath.Clean(path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// Dependencies groups what the HTTP surface needs.
type Dependencies struct {
	Config  *config.Config
	Logger  *logger.Logger
	Manager *service.Manager
	Display *display.Display
	Hub     *websocket.HubService
	Buffer  *storage.BufferService
	Journal repository.EvaluationRepository
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	log := deps.Logger

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, deps.Display, log))
	mux.HandleFunc("/api/status", handler.StatusHandler(deps.Manager, deps.Display, deps.Hub, log))
	mux.HandleFunc("/api/history", handler.GetHistoryHandler(deps.Journal, log))
	mux.HandleFunc("/api/history/stats", handler.HistoryStatsHandler(deps.Journal, log))
	mux.HandleFunc("/api/history/clear", handler.ClearHistoryHandler(deps.Buffer, deps.Journal, log))

	// Log endpoints
	for _, level := range []struct{ path, file string }{
		{"info", logger.InfoFile},
		{"warning", logger.WarningFile},
		{"error", logger.ErrorFile},
	} {
		mux.HandleFunc("/logs/"+level.path, handler.ShowLogsHandler(log, level.file))
		mux.HandleFunc("/logs/"+level.path+"/clear", handler.ClearLogsHandler(log, level.file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(deps.Config, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /history -> /static/history.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux)
}
