package router

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/handler"
)

// New wires the agent's HTTP routes. CORS is wide open: the server
// binds to localhost only and the editor plugin's webview origin is
// not stable across editor versions.
func New(agentHandler *handler.AgentHandler, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/state", method(http.MethodGet, agentHandler.State))
	mux.HandleFunc("/api/v1/auth/login", method(http.MethodPost, agentHandler.Login))
	mux.HandleFunc("/api/v1/auth/logout", method(http.MethodPost, agentHandler.Logout))
	mux.HandleFunc("/api/v1/editor/active-document", method(http.MethodPost, agentHandler.ActiveDocument))

	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			agentHandler.CreateTask(w, r)
		case http.MethodDelete:
			agentHandler.DeleteTask(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/tasks/refresh", method(http.MethodPost, agentHandler.RefreshTasks))
	mux.HandleFunc("/api/v1/tasks/update", method(http.MethodPost, agentHandler.UpdateTask))
	mux.HandleFunc("/api/v1/tasks/archive", method(http.MethodPost, agentHandler.ArchiveTask))
	mux.HandleFunc("/api/v1/tasks/select", method(http.MethodPost, agentHandler.SelectTask))
	mux.HandleFunc("/api/v1/tasks/filters", method(http.MethodPost, agentHandler.SetFilters))

	mux.HandleFunc("/api/v1/timer/start", method(http.MethodPost, agentHandler.StartTimer))
	mux.HandleFunc("/api/v1/timer/stop", method(http.MethodPost, agentHandler.StopTimer))

	mux.HandleFunc("/api/v1/reminders", method(http.MethodPost, agentHandler.CreateReminder))
	mux.HandleFunc("/api/v1/notifications", method(http.MethodGet, agentHandler.Notifications))
	mux.HandleFunc("/api/v1/notifications/respond", method(http.MethodPost, agentHandler.RespondNotification))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		mux.ServeHTTP(w, r)
	})
}

func method(allowed string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != allowed {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
