package bot

import (
	"context"
	"errors"

	"github.com/tbourn/go-report-bot/internal/domain"
)

var (
	// ErrRejected marks a request the messaging transport refused, such as
	// markup it cannot parse or a message that no longer exists.
	ErrRejected = errors.New("request rejected by messaging transport")

	// ErrNotModified marks an edit whose content and controls are identical
	// to what is already displayed. It matches ErrRejected as well.
	ErrNotModified = notModified{}
)

type notModified struct{}

func (notModified) Error() string        { return "message is not modified" }
func (notModified) Is(target error) bool { return target == ErrRejected }

// OutgoingMessage is a new message to post into a chat.
type OutgoingMessage struct {
	ChatID   int64
	ReplyTo  int // message id to reply to; 0 for none
	Text     string
	HTML     bool
	Keyboard *domain.Keyboard
}

// EditMessage replaces the text and controls of a posted message. A nil
// Keyboard removes any attached controls.
type EditMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	HTML      bool
	Keyboard  *domain.Keyboard
}

// Gateway is the outbound messaging boundary.
type Gateway interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) (messageID int, err error)
	EditMessage(ctx context.Context, edit EditMessage) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Message is an inbound chat message.
type Message struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Text      string
	// NonText is set for media, contacts, locations, stickers and other
	// content without text.
	NonText bool
}

// CallbackQuery is an inbound button press.
type CallbackQuery struct {
	ID        string
	ChatID    int64
	MessageID int
	UserID    int64
	Data      string
}

// Update is one inbound event. Exactly one field is set.
type Update struct {
	Message  *Message
	Callback *CallbackQuery
}
