package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"live-quiz-service/internal/app"
)

const qrSize = 256

// joinURL builds the link participants scan to join with code.
func joinURL(base, code string) string {
	return strings.TrimRight(base, "/") + "/join?code=" + url.QueryEscape(code)
}

func handleJoinQR(svc *app.QuizService, publicURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		base := publicURL
		if base == "" {
			base = "http://" + r.Host
		}
		png, err := qrcode.Encode(joinURL(base, s.Code), qrcode.Medium, qrSize)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
