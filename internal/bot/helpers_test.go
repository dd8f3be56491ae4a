package bot

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowbot/internal/bot/media"
	"flowbot/internal/bot/state_manager"
	"flowbot/internal/config"
	"flowbot/internal/quiz"
	"flowbot/internal/storage"
	"flowbot/internal/storage/redis"
	pkgredis "flowbot/pkg/redis"
)

const adminChannel int64 = -1001

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// lastText is the latest message to a user, ignoring the admin channel.
func (f *fakeSender) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].ChatID != adminChannel {
			return f.messages[i].Text
		}
	}
	return ""
}

func (f *fakeSender) sentTo(chatID int64) []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
	f.requests = nil
}

// fakeMedia renders every delivery as a text message on the fake sender.
type fakeMedia struct {
	sender *fakeSender
	mu     sync.Mutex
	reqs   []media.Request
	fail   error
}

func (f *fakeMedia) Deliver(_ context.Context, req media.Request) (media.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	fail := f.fail
	f.mu.Unlock()

	if fail != nil && req.Kind != media.KindText {
		return media.Result{}, &media.DeliveryError{Source: req.Source, Err: fail}
	}
	msg := tgbotapi.NewMessage(req.ChatID, req.Caption)
	if req.Keyboard != nil {
		msg.ReplyMarkup = req.Keyboard
	}
	sent, _ := f.sender.Send(msg)
	return media.Result{MessageID: sent.MessageID}, nil
}

type fakeRepo struct {
	mu            sync.Mutex
	contacts      map[int64]string
	levels        map[int64]quiz.AccessLevel
	phones        map[string]int64
	registrations []storage.Registration
	forms         map[int64]*quiz.Form
	results       map[[2]int64]storage.Result
	createErr     error
	saveErr       error
	panicOnList   bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		contacts: make(map[int64]string),
		levels:   make(map[int64]quiz.AccessLevel),
		phones:   make(map[string]int64),
		forms:    make(map[int64]*quiz.Form),
		results:  make(map[[2]int64]storage.Result),
	}
}

func (r *fakeRepo) UpsertContact(_ context.Context, telegramID int64, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[telegramID] = username
	return telegramID, nil
}

func (r *fakeRepo) AccessLevel(_ context.Context, telegramID int64) (quiz.AccessLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[telegramID], nil
}

func (r *fakeRepo) IsRegistered(_ context.Context, telegramID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.registrations {
		if reg.TelegramID == telegramID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) PhoneExists(_ context.Context, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.phones[phone]
	return ok, nil
}

func (r *fakeRepo) CreateRegistration(_ context.Context, reg storage.Registration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return 0, r.createErr
	}
	if _, ok := r.phones[reg.Phone]; ok {
		return 0, storage.ErrPhoneTaken
	}
	reg.ID = int64(len(r.registrations) + 1)
	r.registrations = append(r.registrations, reg)
	r.phones[reg.Phone] = reg.TelegramID
	if r.levels[reg.TelegramID] < quiz.AccessLead {
		r.levels[reg.TelegramID] = quiz.AccessLead
	}
	return reg.ID, nil
}

func (r *fakeRepo) ListForms(_ context.Context, level quiz.AccessLevel) ([]storage.FormSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOnList {
		panic("list forms exploded")
	}
	var out []storage.FormSummary
	for _, f := range r.forms {
		if f.AccessLevel <= level {
			out = append(out, storage.FormSummary{ID: f.ID, Name: f.Name, OneOff: f.OneOff, AccessLevel: int(f.AccessLevel)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) GetForm(_ context.Context, formID int64) (*quiz.Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[formID]
	if !ok {
		return nil, storage.ErrFormNotFound
	}
	return f, nil
}

func (r *fakeRepo) HasResult(_ context.Context, telegramID, formID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.results[[2]int64{telegramID, formID}]
	return ok, nil
}

func (r *fakeRepo) SaveResult(_ context.Context, res storage.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.results[[2]int64{res.TelegramID, res.FormID}] = res
	return nil
}

func (r *fakeRepo) result(userID, formID int64) (storage.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[[2]int64{userID, formID}]
	return res, ok
}

type testEnv struct {
	bot    *Bot
	sender *fakeSender
	media  *fakeMedia
	repo   *fakeRepo
	state  *state_manager.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := pkgredis.New(mr.Addr(), "", 0)
	t.Cleanup(client.Close)

	sender := &fakeSender{}
	mediaFake := &fakeMedia{sender: sender}
	repo := newFakeRepo()
	state := state_manager.New(redis.New(client, time.Hour))
	cfg := &config.Config{
		Games:          []string{"Dota 2", "CS2", "Minecraft"},
		AdminChannelID: adminChannel,
	}

	return &testEnv{
		bot:    New(sender, state, repo, mediaFake, cfg, zap.NewNop()),
		sender: sender,
		media:  mediaFake,
		repo:   repo,
		state:  state,
	}
}

func (e *testEnv) handle(ev Event) {
	e.bot.HandleEvent(context.Background(), ev)
}

func (e *testEnv) session(t *testing.T, userID int64) *redis.Session {
	t.Helper()
	s, err := e.state.Get(context.Background(), userID)
	require.NoError(t, err)
	return s
}

func (e *testEnv) start(t *testing.T, userID int64, s *redis.Session) {
	t.Helper()
	require.NoError(t, e.state.Start(context.Background(), userID, s))
}

func (e *testEnv) lastTextContains(t *testing.T, substr string) {
	t.Helper()
	last := e.sender.lastText()
	require.Truef(t, strings.Contains(last, substr), "last message %q does not contain %q", last, substr)
}

func commandEvent(userID int64, command string) Event {
	return Event{Kind: EventCommand, UserID: userID, ChatID: userID, Command: command, Text: "/" + command}
}

func textEvent(userID int64, text string) Event {
	return Event{Kind: EventText, UserID: userID, ChatID: userID, Text: text}
}

func callbackEvent(userID int64, data string) Event {
	return Event{Kind: EventCallback, UserID: userID, ChatID: userID, CallbackID: "cb", Data: data, MessageID: 100}
}

func int64p(v int64) *int64 { return &v }
