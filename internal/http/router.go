package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"checkoutflow/internal/challenge"
	"checkoutflow/internal/config"
	"checkoutflow/internal/http/handlers"
	"checkoutflow/internal/services/session"
)

// RouterDependencies holds everything the HTTP surface needs.
type RouterDependencies struct {
	Config   config.Cfg
	Sessions *session.Manager
	Matcher  challenge.Matcher
}

// NewRouter builds the HTTP router: the checkout API plus the 3DS redirect
// callbacks the gateway sends the cardholder back through.
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments", handlers.CreatePayment(deps.Sessions))
		r.Get("/payments/{sessionID}", handlers.GetPayment(deps.Sessions))
		r.Post("/payments/{sessionID}/retry", handlers.RetryPayment(deps.Sessions))
		r.Post("/payments/{sessionID}/reset", handlers.ResetPayment(deps.Sessions))
	})

	// The gateway redirects here after a 3DS challenge.
	r.Get("/callbacks/3ds/*", handlers.ChallengeRedirect(deps.Sessions, deps.Matcher, deps.Config.App.PublicBaseURL))

	return r
}
