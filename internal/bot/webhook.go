package bot

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// SecretTokenHeader carries the secret_token registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler serves Telegram webhook calls on path and a health check
// on /healthz. Updates are queued and acknowledged at once; Telegram would
// otherwise redeliver slow ones. When secret is set, calls without the
// matching SecretTokenHeader are refused.
func (b *Bot) WebhookHandler(path, secret string) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.Post(path, func(w http.ResponseWriter, req *http.Request) {
		if !validSecret(req, secret) {
			b.logger.Warn("Rejected webhook call with wrong secret token",
				zap.String("request_id", chiMiddleware.GetReqID(req.Context())),
				zap.String("remote_addr", req.RemoteAddr))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			b.logger.Warn("Failed to decode webhook update",
				zap.String("request_id", chiMiddleware.GetReqID(req.Context())),
				zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}

		b.Dispatch(req.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func validSecret(req *http.Request, secret string) bool {
	if secret == "" {
		return true
	}
	got := req.Header.Get(SecretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
