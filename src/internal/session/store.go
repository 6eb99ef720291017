package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"challengehub-realtime-svc/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultPrefix   = "sess:"
	expiryIndexKey  = "expiry"
	sweepBatchSize  = 500
	maxWatchRetries = 5
)

// Store is the durable session store shared by the HTTP and push paths.
//
// Load reports unknown and expired identifiers as models.ErrSessionNotFound;
// any other error is an I/O failure.
type Store interface {
	Create(ctx context.Context, userID string) (*Session, error)
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Touch(ctx context.Context, sessionID string) error
	InitSecret(ctx context.Context, sessionID, candidate string) (string, error)
	Rotate(ctx context.Context, sessionID string) (*Session, error)
	Destroy(ctx context.Context, sessionID string) error
	Sweep(ctx context.Context) (int, error)
}

// Clock returns the current time.
type Clock func() time.Time

type Option func(*RedisStore)

// WithClock replaces time.Now.
func WithClock(clock Clock) Option {
	return func(r *RedisStore) {
		r.now = clock
	}
}

// WithTouch enables last-seen updates on Touch. Expiry never slides.
func WithTouch(enabled bool) Option {
	return func(r *RedisStore) {
		r.touch = enabled
	}
}

// WithPrefix sets the key prefix (default "sess:").
func WithPrefix(prefix string) Option {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// RedisStore keeps one JSON record per session plus a sorted-set index
// scored by absolute expiry, which Sweep walks.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	touch  bool
	now    Clock
}

// NewRedisStore creates a Redis-backed session store with a fixed TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration, opts ...Option) *RedisStore {
	r := &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: defaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) indexKey() string {
	return r.prefix + expiryIndexKey
}

func (r *RedisStore) Create(ctx context.Context, userID string) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, errors.Join(models.ErrSessionCreating, err)
	}

	now := r.now()
	s := &Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}

	if err := r.write(ctx, s, ""); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to create session")
		return nil, errors.Join(models.ErrSessionCreating, err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":    shortID(id),
		"user_id":       userID,
		"expires_at":    s.ExpiresAt,
		"authenticated": s.IsAuthenticated(),
	}).Debug("Session created")

	return s, nil
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if !validID(sessionID) {
		return nil, models.ErrSessionNotFound
	}

	data, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", shortID(sessionID)).Error("Failed to load session")
		return nil, errors.Join(models.ErrRedisGet, err)
	}

	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		logrus.WithError(err).WithField("session_id", shortID(sessionID)).Warn("Corrupted session record")
		return nil, models.ErrSessionNotFound
	}

	if s.IsExpiredAt(r.now()) {
		return nil, models.ErrSessionNotFound
	}

	return &s, nil
}

// Save persists identity and secret changes. CreatedAt and ExpiresAt are
// taken from the stored record, so the lifetime is never extended.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return models.ErrSessionInvalid
	}

	_, err := r.update(ctx, s.ID, func(stored *Session) bool {
		stored.UserID = s.UserID
		stored.CSRFSecret = s.CSRFSecret
		stored.LastSeenAt = s.LastSeenAt
		return true
	})
	return err
}

// Touch records activity when the touch policy is enabled. With the policy
// disabled ordinary requests never write to the store.
func (r *RedisStore) Touch(ctx context.Context, sessionID string) error {
	if !r.touch {
		return nil
	}

	_, err := r.update(ctx, sessionID, func(stored *Session) bool {
		stored.LastSeenAt = r.now()
		return true
	})
	return err
}

// InitSecret stores candidate as the CSRF secret unless one is already set,
// and returns whichever secret is in effect. Concurrent callers converge on
// a single secret.
func (r *RedisStore) InitSecret(ctx context.Context, sessionID, candidate string) (string, error) {
	s, err := r.update(ctx, sessionID, func(stored *Session) bool {
		if stored.CSRFSecret != "" {
			return false
		}
		stored.CSRFSecret = candidate
		return true
	})
	if err != nil {
		return "", err
	}
	return s.CSRFSecret, nil
}

// update applies mutate to the stored record under WATCH and writes it back
// with its TTL untouched. mutate returns false to skip the write.
func (r *RedisStore) update(ctx context.Context, sessionID string, mutate func(*Session) bool) (*Session, error) {
	if !validID(sessionID) {
		return nil, models.ErrSessionNotFound
	}
	key := r.key(sessionID)
	var result Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return models.ErrSessionNotFound
			}
			return err
		}

		var s Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return models.ErrSessionNotFound
		}
		if s.IsExpiredAt(r.now()) {
			return models.ErrSessionNotFound
		}

		if !mutate(&s) {
			result = s
			return nil
		}

		updated, err := json.Marshal(&s)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, updated, redis.SetArgs{Mode: "XX", KeepTTL: true})
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return &result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		logrus.WithError(err).WithField("session_id", shortID(sessionID)).Error("Failed to update session")
		return nil, errors.Join(models.ErrSessionUpdating, err)
	}

	return nil, fmt.Errorf("%w: too much contention on session", models.ErrSessionUpdating)
}

// Rotate replaces the session with a fresh identifier and no CSRF secret,
// keeping the identity. Tokens issued for the old session stop validating.
func (r *RedisStore) Rotate(ctx context.Context, sessionID string) (*Session, error) {
	old, err := r.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	id, err := GenerateID()
	if err != nil {
		return nil, errors.Join(models.ErrSessionCreating, err)
	}

	now := r.now()
	renewed := &Session{
		ID:         id,
		UserID:     old.UserID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}

	if err := r.write(ctx, renewed, old.ID); err != nil {
		logrus.WithError(err).WithField("session_id", shortID(sessionID)).Error("Failed to rotate session")
		return nil, errors.Join(models.ErrSessionCreating, err)
	}

	logrus.WithFields(logrus.Fields{
		"old_session_id": shortID(old.ID),
		"session_id":     shortID(renewed.ID),
		"user_id":        renewed.UserID,
	}).Debug("Session rotated")

	return renewed, nil
}

func (r *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	if !validID(sessionID) {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(sessionID))
		pipe.ZRem(ctx, r.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("session_id", shortID(sessionID)).Error("Failed to destroy session")
		return errors.Join(models.ErrSessionDeleting, err)
	}
	return nil
}

// Sweep removes every record whose absolute expiry has passed. It works in
// batches and holds no process-level lock, so Load and Create proceed
// concurrently.
func (r *RedisStore) Sweep(ctx context.Context) (int, error) {
	max := strconv.FormatInt(r.now().UnixMilli(), 10)
	removed := 0

	for {
		ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   max,
			Count: sweepBatchSize,
		}).Result()
		if err != nil {
			return removed, errors.Join(models.ErrRedisGet, err)
		}
		if len(ids) == 0 {
			return removed, nil
		}

		keys := make([]string, len(ids))
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			keys[i] = r.key(id)
			members[i] = id
		}

		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.ZRem(ctx, r.indexKey(), members...)
			return nil
		})
		if err != nil {
			return removed, errors.Join(models.ErrRedisDelete, err)
		}
		removed += len(ids)

		if len(ids) < sweepBatchSize {
			return removed, nil
		}
	}
}

// write stores s and its index entry, deleting replaced in the same
// transaction when set.
func (r *RedisStore) write(ctx context.Context, s *Session, replaced string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(s.ID), data, 0)
		pipe.PExpireAt(ctx, r.key(s.ID), s.ExpiresAt)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(s.ExpiresAt.UnixMilli()),
			Member: s.ID,
		})
		if replaced != "" {
			pipe.Del(ctx, r.key(replaced))
			pipe.ZRem(ctx, r.indexKey(), replaced)
		}
		return nil
	})
	if err != nil {
		return errors.Join(models.ErrRedisSet, err)
	}
	return nil
}

// validID rejects identifiers that could address the expiry index.
func validID(id string) bool {
	return id != "" && id != expiryIndexKey
}

// shortID keeps session identifiers out of logs in full.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
