package route

import (
	"net/http"
	"os"
	"path/filepath"

	"arlens/internal/config"
	"arlens/internal/handler"
	"arlens/internal/logger"
	"arlens/internal/middleware"
	"arlens/internal/repository"
	"arlens/internal/service/presentation"
	wshub "arlens/internal/service/websocket"
)

// Deps carries what the HTTP surface reads from. History is nil when
// persistence is disabled.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Hub          *wshub.HubService
	Presentation *presentation.State
	History      repository.BatchRepository
	Stats        http.HandlerFunc
	StaticDir    string
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers static file serving, the viewer socket, API and log
// endpoints, and wraps the mux with the authentication middleware.
func SetupRoutes(deps Deps) http.Handler {
	staticDir := deps.StaticDir
	if staticDir == "" {
		staticDir = "static"
	}
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, deps.Logger))
	mux.HandleFunc("/api/results/current", handler.CurrentResultsHandler(deps.Presentation))
	if deps.History != nil {
		mux.HandleFunc("/api/results/history", handler.HistoryHandler(deps.History, deps.Logger))
	}
	if deps.Stats != nil {
		mux.HandleFunc("/api/stats", deps.Stats)
	}

	// Log endpoints
	for level := range handler.LogFiles {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(deps.Logger, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(deps.Logger, level))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(deps.Config, deps.Logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// /settings -> <static>/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler(staticDir))

	return middleware.AuthMiddleware(deps.Config.Password, mux)
}
