package middleware

import (
	"github.com/m3rciful/vinylbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RequireAdmin wraps a handler so it only runs for the configured admin user.
// Other senders get no reply, matching unknown-command behaviour.
func RequireAdmin(adminID int64, next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil || adminID == 0 || user.ID != adminID {
			if user != nil {
				logger.TG.Warn("admin access denied",
					slog.String("event", "tg.access_denied"),
					slog.Int64("user_id", user.ID),
				)
			}
			return nil
		}
		return next(c)
	}
}
