package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flowbot/internal/callback"
	"flowbot/internal/storage/redis"
)

// route is one row of the routing table. Rows are tried in order and the
// first match handles the event.
type route struct {
	name   string
	match  func(*redis.Session, Event) bool
	handle func(context.Context, *redis.Session, Event)
}

func (b *Bot) registerRoutes() {
	b.routes = []route{
		{name: "cancel", match: isCancel, handle: b.HandleCancel},
		{name: "registration", match: b.registrationAccepts, handle: b.HandleRegistrationStep},
		{name: "quiz", match: quizAccepts, handle: b.HandleQuizEvent},
		{name: "entry", match: isEntry, handle: b.HandleEntry},
		{name: "mismatch", match: inFlow, handle: b.HandleMismatch},
		{name: "stale_callback", match: isCallback, handle: b.HandleStaleCallback},
		{name: "fallback", match: always, handle: b.HandleDefault},
	}
}

// HandleEvent routes one event against the user's current session.
func (b *Bot) HandleEvent(ctx context.Context, ev Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in handler",
				zap.Int64("chat_id", ev.ChatID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			b.SendError(ev.ChatID, "Системная ошибка. Нажмите /start, чтобы начать заново.")
		}
	}()

	if ev.Kind == EventCallback {
		b.answerCallback(ev)

		token, err := b.codec.Decode(ev.Data)
		if err != nil {
			b.logger.Warn("Failed to decode callback",
				zap.Int64("chat_id", ev.ChatID),
				zap.String("data", ev.Data),
				zap.Error(err))
			b.SendError(ev.ChatID, "Кнопка больше не работает. Воспользуйтесь меню.")
			return
		}
		ev.Token = token
	}

	session, err := b.state.Get(ctx, ev.UserID)
	if err != nil {
		b.logger.Error("Failed to get user state",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при обработке запроса")
		return
	}

	r := b.resolve(session, ev)
	r.handle(ctx, session, ev)

	b.logger.Debug("Event handled",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("kind", ev.Kind.String()),
		zap.String("flow", session.Flow.String()),
		zap.String("step", session.Step),
		zap.String("route", r.name),
		zap.Duration("took", time.Since(start)))
}

func (b *Bot) resolve(session *redis.Session, ev Event) route {
	for _, r := range b.routes {
		if r.match(session, ev) {
			return r
		}
	}
	// fallback always matches
	return b.routes[len(b.routes)-1]
}

func isCancel(_ *redis.Session, ev Event) bool {
	switch ev.Kind {
	case EventCommand:
		return ev.Command == "cancel"
	case EventText:
		return ev.Text == BtnCancel
	case EventCallback:
		return ev.Token.Marker == callback.MarkerValue && ev.Token.Property() == valueCancel
	}
	return false
}

func isEntry(_ *redis.Session, ev Event) bool {
	switch ev.Kind {
	case EventCommand:
		return true
	case EventText:
		return isMenuButton(ev.Text)
	case EventCallback:
		return isCallbackFor(ev, callback.MarkerProperty, propForm)
	}
	return false
}

func isMenuButton(text string) bool {
	switch text {
	case BtnRegister, BtnQuizzes, BtnHelp:
		return true
	}
	return false
}

// isFreeText is a plain message that is not a menu button.
func isFreeText(ev Event) bool {
	return ev.Kind == EventText && !isMenuButton(ev.Text)
}

func isCallbackFor(ev Event, marker, property string) bool {
	return ev.Kind == EventCallback && ev.Token.Marker == marker && ev.Token.Property() == property
}

func inFlow(s *redis.Session, _ Event) bool { return s.Active() }

func isCallback(_ *redis.Session, ev Event) bool { return ev.Kind == EventCallback }

func always(*redis.Session, Event) bool { return true }
