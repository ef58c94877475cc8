package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/swaggest/swgui/v5emb"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Service   *app.QuizService
	Auth      *auth.Authenticator
	Logger    *slog.Logger
	PublicURL string
	Checks    map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(d.Logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, d)
	return r
}

func addRoutes(r chi.Router, d Deps) {
	svc, logger := d.Service, d.Logger

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Live Quiz API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, d.Checks))

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(d.Auth))

		r.Get("/ws", NewWSHandler(svc, logger).ServeWS)

		r.Post("/api/join", handleJoin(svc, logger))
		r.Post("/api/score", handleScore(svc, logger))

		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", handleCreateSession(svc, logger))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleGetSession(svc, logger))
				r.Delete("/", handleDeleteSession(svc, logger))

				r.Get("/questions", handleListQuestions(svc, logger))
				r.Post("/questions", handleAddQuestion(svc, logger))
				r.Post("/questions/import", handleImportQuestions(svc, logger))
				r.Delete("/questions/{questionID}", handleRemoveQuestion(svc, logger))

				r.Post("/lobby", handleOpenLobby(svc, logger))
				r.Post("/start", handleStartQuestion(svc, logger))
				r.Post("/advance", handleAdvance(svc, logger))
				r.Post("/end", handleEnd(svc, logger))
				r.Post("/restart", handleRestart(svc, logger))

				r.Get("/participants", handleListParticipants(svc, logger))
				r.Post("/participants", handleJoinSession(svc, logger))
				r.Post("/skip", handleSkip(svc, logger))

				r.Get("/results/{index}", handleResults(svc, logger))
				r.Get("/leaderboard", handleLeaderboard(svc, logger))
				r.Get("/qr.png", handleJoinQR(svc, d.PublicURL, logger))
			})
		})
	})
}
