package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the REST API, the websocket endpoint and the health check.
func NewRouter(api *APIHandler, ws *WSHandler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/quiz/generate", api.CreateQuiz)
		r.Route("/quiz/{id}", func(r chi.Router) {
			r.Get("/", api.GetQuiz)
			r.Post("/join", api.Join)
			r.Post("/start", api.Start)
			r.Post("/next", api.Next)
			r.Post("/pause", api.Pause)
			r.Post("/resume", api.Resume)
			r.Post("/end", api.End)
			r.Get("/stats", api.Stats)
			r.Get("/tally", api.Tally)
			r.Get("/rankings", api.Rankings)
		})
		r.Post("/response", api.SubmitResponse)
		r.Get("/archive/{id}", api.Archive)
	})
	return r
}
