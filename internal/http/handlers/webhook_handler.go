package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-report-bot/internal/bot"
	"github.com/tbourn/go-report-bot/internal/http/middleware"
)

// Webhook receives one Telegram update. The secret header is checked by
// middleware.WebhookSecret before this runs.
//
// Telegram redelivers updates it did not see acknowledged, so update ids
// already accepted are answered 200 without dispatching again. Updates the
// bot does not handle are acknowledged too, otherwise Telegram would retry
// them forever.
func (h *Handlers) Webhook(c *gin.Context) {
	var u tgbotapi.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update payload")
		return
	}

	lg := middleware.LoggerFrom(c)
	if found, _ := h.seen.ContainsOrAdd(u.UpdateID, struct{}{}); found {
		lg.Debug().Int("telegram_update_id", u.UpdateID).Msg("duplicate update ignored")
		ok(c, http.StatusOK, gin.H{"ok": true})
		return
	}

	upd, handled := bot.FromTelegram(u)
	if handled && h.updates != nil {
		h.updates.Submit(upd)
	} else {
		lg.Debug().Int("telegram_update_id", u.UpdateID).Msg("update not handled")
	}
	ok(c, http.StatusOK, gin.H{"ok": true})
}
