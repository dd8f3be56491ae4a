package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"flowbot/internal/bot/state_manager"
	"flowbot/internal/callback"
	"flowbot/internal/config"
)

type Bot struct {
	api     Sender
	logger  *zap.Logger
	state   *state_manager.Manager
	storage Repository
	media   MediaDeliverer
	cfg     *config.Config
	codec   *callback.Codec

	routes     []route
	steps      map[string]wizardStep
	dispatcher *dispatcher
}

func New(
	api Sender,
	state *state_manager.Manager,
	repo Repository,
	mediaCache MediaDeliverer,
	cfg *config.Config,
	logger *zap.Logger,
) *Bot {
	b := &Bot{
		api:     api,
		logger:  logger,
		state:   state,
		storage: repo,
		media:   mediaCache,
		cfg:     cfg,
		codec:   callback.Default,
	}

	b.registerRoutes()
	b.registerSteps()
	b.dispatcher = newDispatcher(b.HandleEvent)
	return b
}

// Dispatch queues an update behind the sender's earlier ones. Handlers keep
// running after ctx is cancelled so that queued events are not cut in half.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) {
	ev, ok := NewEvent(update)
	if !ok {
		b.logger.Debug("Skipping unsupported update",
			zap.Int("update_id", update.UpdateID))
		return
	}
	b.dispatcher.Submit(context.WithoutCancel(ctx), ev)
}

// Wait blocks until every dispatched event has been handled.
func (b *Bot) Wait() {
	b.dispatcher.Wait()
}

// Start runs long polling until ctx is done.
func (b *Bot) Start(ctx context.Context, api *tgbotapi.BotAPI) error {
	b.logger.Info("Starting bot",
		zap.String("username", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Shutting down bot")
			api.StopReceivingUpdates()
			b.Wait()
			return nil

		case update, ok := <-updates:
			if !ok {
				b.Wait()
				return nil
			}
			b.Dispatch(ctx, update)
		}
	}
}
