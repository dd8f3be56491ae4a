package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flowbot/pkg/redis"
)

const mediaIndexKey = "media:file_ids"

type Storage struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. ttl bounds how long an untouched session survives; zero
// keeps sessions until they are cleared.
func New(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{client: client, ttl: ttl}
}

func (s *Storage) SetSession(ctx context.Context, userID int64, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, buildStateKey(userID), data, s.ttl); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// GetSession returns an empty session when none is stored.
func (s *Storage) GetSession(ctx context.Context, userID int64) (*Session, error) {
	data, err := s.client.Get(ctx, buildStateKey(userID))
	if redis.IsNil(err) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *Storage) DropSession(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, buildStateKey(userID)); err != nil {
		return fmt.Errorf("drop session: %w", err)
	}
	return nil
}

// LookupFileID returns the remote handle stored for a media fingerprint.
func (s *Storage) LookupFileID(ctx context.Context, fingerprint string) (string, bool, error) {
	id, err := s.client.HGet(ctx, mediaIndexKey, fingerprint)
	if redis.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup media %s: %w", fingerprint, err)
	}
	return id, true, nil
}

// StoreFileID records the remote handle for a media fingerprint. Entries
// never expire.
func (s *Storage) StoreFileID(ctx context.Context, fingerprint, fileID string) error {
	if err := s.client.HSet(ctx, mediaIndexKey, fingerprint, fileID); err != nil {
		return fmt.Errorf("store media %s: %w", fingerprint, err)
	}
	return nil
}

func buildStateKey(userID int64) string {
	return fmt.Sprintf("state:%d", userID)
}
