package state_manager

import (
	"context"

	"flowbot/internal/storage/redis"
)

type SessionStorage interface {
	GetSession(ctx context.Context, userID int64) (*redis.Session, error)
	SetSession(ctx context.Context, userID int64, session *redis.Session) error
	DropSession(ctx context.Context, userID int64) error
}

var _ SessionStorage = (*redis.Storage)(nil)
