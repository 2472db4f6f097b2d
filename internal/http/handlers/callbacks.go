package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"checkoutflow/internal/challenge"
	"checkoutflow/internal/services/session"
)

// ChallengeRedirect terminates the 3DS flow. The gateway redirects the
// cardholder's browser here; the navigated URL is matched against the
// configured success and failure targets and the owning session is re-entered
// with the result. Navigations matching neither target are ignored, as the
// challenge may still be in progress.
func ChallengeRedirect(sessions *session.Manager, matcher challenge.Matcher, publicBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		navigated := publicBaseURL + r.URL.RequestURI()

		result := matcher.Match(navigated)
		if result == challenge.Ignore {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		sid := r.URL.Query().Get("sid")
		sess, ok := sessions.Get(sid)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		success := result == challenge.Success
		if err := sess.ReportChallengeOutcome(success, ""); err != nil {
			// A repeated redirect for an already-resolved challenge.
			log.Warn().Err(err).Str("session_id", sid).Msg("challenge outcome not accepted")
			http.Error(w, "challenge already resolved", http.StatusConflict)
			return
		}

		log.Info().Str("session_id", sid).Bool("success", success).Msg("3DS challenge outcome received")
		writeSession(w, sid, sess)
	}
}
