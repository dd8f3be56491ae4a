package state_manager

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbot/internal/storage/redis"
)

type memoryStorage struct {
	mu       sync.Mutex
	sessions map[int64]redis.Session
	writes   int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{sessions: make(map[int64]redis.Session)}
}

func (m *memoryStorage) GetSession(_ context.Context, userID int64) (*redis.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[userID]
	return &s, nil
}

func (m *memoryStorage) SetSession(_ context.Context, userID int64, session *redis.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.sessions[userID] = *session
	return nil
}

func (m *memoryStorage) DropSession(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func TestGet_Fresh(t *testing.T) {
	m := New(newMemoryStorage())
	s, err := m.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, redis.FlowNone, s.Flow)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()
	m := New(store)

	require.NoError(t, m.Start(ctx, 1, &redis.Session{
		Flow:         redis.FlowRegistration,
		Step:         "city",
		Registration: &redis.RegistrationState{FirstName: "Иван"},
	}))

	s, err := m.Update(ctx, 1, func(s *redis.Session) error {
		s.Registration.City = "Ташкент"
		s.Step = "games"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "games", s.Step)
	assert.False(t, s.UpdatedAt.IsZero())

	got, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ташкент", got.Registration.City)
	assert.Equal(t, "Иван", got.Registration.FirstName)
}

func TestUpdate_MutatorErrorSkipsWrite(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()
	m := New(store)
	require.NoError(t, m.Start(ctx, 1, &redis.Session{Flow: redis.FlowQuiz, Step: "a"}))
	writes := store.writes

	boom := errors.New("boom")
	_, err := m.Update(ctx, 1, func(s *redis.Session) error {
		s.Step = "b"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, writes, store.writes)

	got, _ := m.Get(ctx, 1)
	assert.Equal(t, "a", got.Step)
}

func TestUpdate_ResetClears(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()
	m := New(store)
	require.NoError(t, m.Start(ctx, 1, &redis.Session{Flow: redis.FlowQuiz, Step: "a"}))

	_, err := m.Update(ctx, 1, func(s *redis.Session) error {
		s.Reset()
		return nil
	})
	require.NoError(t, err)
	assert.NotContains(t, store.sessions, int64(1))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m := New(newMemoryStorage())
	require.NoError(t, m.Start(ctx, 1, &redis.Session{Flow: redis.FlowQuiz}))
	require.NoError(t, m.Clear(ctx, 1))

	got, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Active())
}
