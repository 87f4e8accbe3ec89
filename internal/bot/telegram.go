package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-report-bot/internal/domain"
)

// TelegramAPI is the subset of *tgbotapi.BotAPI used by TelegramGateway.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramGateway implements Gateway over the Telegram Bot API.
type TelegramGateway struct {
	api TelegramAPI
}

// NewTelegramGateway wraps a Bot API client.
func NewTelegramGateway(api TelegramAPI) *TelegramGateway {
	return &TelegramGateway{api: api}
}

func (g *TelegramGateway) SendMessage(ctx context.Context, msg OutgoingMessage) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ReplyToMessageID = msg.ReplyTo
	if msg.HTML {
		cfg.ParseMode = tgbotapi.ModeHTML
	}
	if msg.Keyboard != nil {
		cfg.ReplyMarkup = inlineMarkup(*msg.Keyboard)
	}
	sent, err := g.api.Send(cfg)
	if err != nil {
		return 0, classify("sendMessage", err)
	}
	return sent.MessageID, nil
}

func (g *TelegramGateway) EditMessage(ctx context.Context, edit EditMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewEditMessageText(edit.ChatID, edit.MessageID, edit.Text)
	if edit.HTML {
		cfg.ParseMode = tgbotapi.ModeHTML
	}
	if edit.Keyboard != nil {
		markup := inlineMarkup(*edit.Keyboard)
		cfg.ReplyMarkup = &markup
	}
	// editMessageText answers with the edited message, so Send is used.
	if _, err := g.api.Send(cfg); err != nil {
		return classify("editMessageText", err)
	}
	return nil
}

func (g *TelegramGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// deleteMessage answers with a bare boolean, which Send cannot decode.
	if _, err := g.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return classify("deleteMessage", err)
	}
	return nil
}

func (g *TelegramGateway) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := g.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return classify("answerCallbackQuery", err)
	}
	return nil
}

// classify maps Bot API failures onto ErrNotModified and ErrRejected.
// Transport failures are returned wrapped but unclassified.
func classify(method string, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if strings.Contains(apiErr.Message, "message is not modified") {
		return fmt.Errorf("telegram %s: %w", method, ErrNotModified)
	}
	if apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("telegram %s: %w: %s", method, ErrRejected, apiErr.Message)
	}
	return fmt.Errorf("telegram %s: %d %s", method, apiErr.Code, apiErr.Message)
}

func inlineMarkup(kb domain.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// FromTelegram translates a Bot API update. It reports false for updates the
// bot does not handle (edits, channel posts, service messages).
func FromTelegram(u tgbotapi.Update) (Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		out := &CallbackQuery{ID: cq.ID, Data: cq.Data}
		if cq.From != nil {
			out.UserID = cq.From.ID
		}
		if cq.Message != nil {
			out.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				out.ChatID = cq.Message.Chat.ID
			}
		}
		return Update{Callback: out}, true

	case u.Message != nil:
		m := u.Message
		if m.Chat == nil {
			return Update{}, false
		}
		out := &Message{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: m.Text}
		if m.From != nil {
			out.UserID = m.From.ID
			out.Username = m.From.UserName
		}
		if m.Text == "" {
			if !hasMedia(m) {
				return Update{}, false
			}
			out.NonText = true
		}
		return Update{Message: out}, true
	}
	return Update{}, false
}

func hasMedia(m *tgbotapi.Message) bool {
	return m.Audio != nil || len(m.Photo) > 0 || m.Voice != nil || m.Video != nil ||
		m.VideoNote != nil || m.Document != nil || m.Location != nil ||
		m.Contact != nil || m.Sticker != nil || m.Animation != nil
}

// WebhookRegistrar is the subset of *tgbotapi.BotAPI used to manage the
// webhook registration.
type WebhookRegistrar interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RegisterWebhook points Telegram at url. When secret is non-empty Telegram
// echoes it in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func RegisterWebhook(api WebhookRegistrar, url, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	params.AddNonEmpty("allowed_updates", `["message","callback_query"]`)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	return nil
}

// ClearWebhook removes any webhook so long polling can receive updates.
func ClearWebhook(api WebhookRegistrar) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram deleteWebhook: %w", err)
	}
	return nil
}
