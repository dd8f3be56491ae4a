package state_manager

import (
	"context"
	"fmt"
	"time"

	"flowbot/internal/storage/redis"
)

// Manager is the typed session store. It assumes a single writer per user;
// the bot dispatcher guarantees that by serializing events per user.
type Manager struct {
	storage SessionStorage
	now     func() time.Time
}

func New(storage SessionStorage) *Manager {
	return &Manager{storage: storage, now: time.Now}
}

// Get never fails on a missing session; it returns an idle one instead.
func (m *Manager) Get(ctx context.Context, userID int64) (*redis.Session, error) {
	session, err := m.storage.GetSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSession failed: %w", err)
	}
	return session, nil
}

// Update applies mutate to the current session and writes the result back.
// Nothing is written when mutate fails. A mutator that leaves the session
// idle deletes it.
func (m *Manager) Update(ctx context.Context, userID int64, mutate func(*redis.Session) error) (*redis.Session, error) {
	session, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := mutate(session); err != nil {
		return nil, err
	}

	if !session.Active() {
		if err := m.Clear(ctx, userID); err != nil {
			return nil, err
		}
		return session, nil
	}

	session.UpdatedAt = m.now()
	if err := m.storage.SetSession(ctx, userID, session); err != nil {
		return nil, fmt.Errorf("storage.SetSession failed: %w", err)
	}
	return session, nil
}

// Start replaces whatever the user had with a fresh flow session.
func (m *Manager) Start(ctx context.Context, userID int64, session *redis.Session) error {
	session.UpdatedAt = m.now()
	if err := m.storage.SetSession(ctx, userID, session); err != nil {
		return fmt.Errorf("storage.SetSession failed: %w", err)
	}
	return nil
}

func (m *Manager) SetStep(ctx context.Context, userID int64, step string) error {
	_, err := m.Update(ctx, userID, func(s *redis.Session) error {
		s.Step = step
		return nil
	})
	return err
}

func (m *Manager) Clear(ctx context.Context, userID int64) error {
	if err := m.storage.DropSession(ctx, userID); err != nil {
		return fmt.Errorf("storage.DropSession failed: %w", err)
	}
	return nil
}
