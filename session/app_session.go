// Package session keeps the app sessions that follow an IdP login. The IdP
// proves who the user is once; afterwards the browser holds only an opaque
// session id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession: unknown, expired or revoked.
var ErrNoSession = errors.New("session: not found")

type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

type AppSession struct {
	ID        string `json:"-"`
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func key(id string) string         { return fmt.Sprintf("app:sess:%s", id) }
func userSetKey(uid string) string { return fmt.Sprintf("app:user_sessions:%s", uid) }

// Create issues a new session for userID and indexes it under the user so
// RevokeAllForUser can find it.
func (s *AppSessionStore) Create(ctx context.Context, userID string) (*AppSession, error) {
	now := s.now()
	as := &AppSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	b, err := json.Marshal(as)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(as.ID), b, s.ttl)
	pipe.SAdd(ctx, userSetKey(userID), as.ID)
	pipe.Expire(ctx, userSetKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return as, nil
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	as.ID = id
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id) // 忽略失败
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	if as != nil {
		pipe.SRem(ctx, userSetKey(as.UserID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser runs when a user is deactivated.
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid))
	}
	pipe.Del(ctx, userSetKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
