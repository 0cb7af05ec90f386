package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/repository"
)

const sessionPrefix = "session:"

// sessionRepository keeps one JSON blob per session under session:<id>. The key
// TTL always matches the stored ExpiresAt so Redis evicts revoked or stale
// sessions on its own.
type sessionRepository struct {
	client redislib.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionRepository creates a Redis-backed session repository. ttl is the
// lifetime given to sessions saved without an expiry.
func NewSessionRepository(client redislib.UniversalClient, ttl time.Duration) repository.SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{client: client, ttl: ttl, now: time.Now}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redislib.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, id, raw)
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}

	now := r.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if !session.ExpiresAt.After(now) {
		session.ExpiresAt = now.Add(r.ttl)
	}
	return r.write(ctx, r.client, session, session.ExpiresAt.Sub(now))
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

// Extend moves the expiry to now+ttl. The read and the rewrite run in one
// WATCH transaction so a concurrent logout is never resurrected.
func (r *sessionRepository) Extend(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	key := sessionKey(id)

	err := r.client.Watch(ctx, func(tx *redislib.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redislib.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		session, err := r.decode(ctx, id, raw)
		if err != nil {
			return err
		}
		session.ExpiresAt = r.now().Add(ttl)

		_, err = tx.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
			return r.write(ctx, pipe, session, ttl)
		})
		return err
	}, key)

	if errors.Is(err, redislib.TxFailedErr) {
		return domain.ErrSessionNotFound
	}
	return err
}

// decode treats an unreadable or already expired entry as absent and evicts it.
func (r *sessionRepository) decode(ctx context.Context, id string, raw []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil || session.IsExpired(r.now()) {
		_ = r.client.Del(ctx, sessionKey(id)).Err()
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (r *sessionRepository) write(ctx context.Context, cmd redislib.Cmdable, session *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return cmd.Set(ctx, sessionKey(session.ID), payload, ttl).Err()
}

func sessionKey(id string) string {
	return sessionPrefix + id
}
