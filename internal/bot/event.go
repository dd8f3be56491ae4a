package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowbot/internal/callback"
)

type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventCallback
	EventLocation
	EventContact
	EventFile
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventLocation:
		return "location"
	case EventContact:
		return "contact"
	case EventFile:
		return "file"
	default:
		return "unknown"
	}
}

// Event is an inbound update reduced to what the flows look at.
type Event struct {
	Kind     EventKind
	UserID   int64
	ChatID   int64
	Username string

	Text    string
	Command string
	Args    string

	CallbackID string
	Data       string
	// Token is Data decoded by the router.
	Token     callback.Token
	MessageID int

	Longitude float64
	Latitude  float64
	Phone     string
	// ContactUserID is the Telegram user a shared contact belongs to, 0 if none.
	ContactUserID int64
	FileID        string
}

// NewEvent normalizes an update. ok is false for updates the bot ignores.
func NewEvent(u tgbotapi.Update) (Event, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return Event{}, false
		}
		return Event{
			Kind:       EventCallback,
			UserID:     cb.From.ID,
			ChatID:     cb.Message.Chat.ID,
			Username:   cb.From.UserName,
			CallbackID: cb.ID,
			Data:       cb.Data,
			MessageID:  cb.Message.MessageID,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return Event{}, false
	}

	ev := Event{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		Username:  msg.From.UserName,
		Text:      msg.Text,
		MessageID: msg.MessageID,
	}

	switch {
	case msg.IsCommand():
		ev.Kind = EventCommand
		ev.Command = msg.Command()
		ev.Args = msg.CommandArguments()
	case msg.Location != nil:
		ev.Kind = EventLocation
		ev.Longitude = msg.Location.Longitude
		ev.Latitude = msg.Location.Latitude
	case msg.Contact != nil:
		ev.Kind = EventContact
		ev.Phone = msg.Contact.PhoneNumber
		ev.ContactUserID = msg.Contact.UserID
	case msg.Document != nil:
		ev.Kind = EventFile
		ev.FileID = msg.Document.FileID
		ev.Text = msg.Caption
	case len(msg.Photo) > 0:
		ev.Kind = EventFile
		ev.FileID = msg.Photo[len(msg.Photo)-1].FileID
		ev.Text = msg.Caption
	case msg.Text != "":
		ev.Kind = EventText
	default:
		return Event{}, false
	}

	return ev, true
}
