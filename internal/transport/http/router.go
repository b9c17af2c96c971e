package http

import (
	"net/http"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/app"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/realtime"
	"github.com/rs/cors"
)

// NewRouter mounts the REST API, the websocket endpoint and the health check
// behind CORS. An empty origin list allows every origin.
func NewRouter(sessions *app.SessionService, hub *realtime.Hub, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	mux := http.NewServeMux()
	NewAPI(sessions).Register(mux)
	mux.HandleFunc("GET /ws", NewWSHandler(sessions, hub).ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
