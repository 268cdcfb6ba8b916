package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/auth"
)

// RedisStore keeps state in Redis so several client processes can share one session.
type RedisStore struct {
	client       redis.UniversalClient
	prefix       string
	handshakeTTL time.Duration
	now          func() time.Time
	logger       *logrus.Entry
}

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithHandshakeTTL bounds how long a pending handshake is kept.
func WithHandshakeTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.handshakeTTL = ttl
		}
	}
}

// WithRedisLogger overrides the logger.
func WithRedisLogger(logger *logrus.Entry) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore builds a store using keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "fitness"
	}
	s := &RedisStore{
		client:       client,
		prefix:       prefix,
		handshakeTTL: 10 * time.Minute,
		now:          time.Now,
		logger:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("store", "redis")
	return s
}

func (s *RedisStore) credentialKey() string { return s.prefix + ":credential" }
func (s *RedisStore) handshakeKey() string  { return s.prefix + ":handshake" }

// Save stores cred until its expiry; an already expired credential is refused with ErrExpired.
func (s *RedisStore) Save(ctx context.Context, cred auth.Credential) error {
	var ttl time.Duration
	if !cred.Claims.ExpiresAt.IsZero() {
		ttl = cred.Claims.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return fmt.Errorf("save credential for %s: %w", cred.UserID, ErrExpired)
		}
	}
	return s.set(ctx, s.credentialKey(), cred, ttl)
}

func (s *RedisStore) Load(ctx context.Context) (*auth.Credential, error) {
	var cred auth.Credential
	ok, err := s.get(ctx, s.credentialKey(), &cred)
	if err != nil || !ok {
		return nil, err
	}
	return &cred, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.del(ctx, s.credentialKey())
}

func (s *RedisStore) SaveHandshake(ctx context.Context, hs Handshake) error {
	return s.set(ctx, s.handshakeKey(), hs, s.handshakeTTL)
}

func (s *RedisStore) LoadHandshake(ctx context.Context) (*Handshake, error) {
	var hs Handshake
	ok, err := s.get(ctx, s.handshakeKey(), &hs)
	if err != nil || !ok {
		return nil, err
	}
	return &hs, nil
}

func (s *RedisStore) ClearHandshake(ctx context.Context) error {
	return s.del(ctx, s.handshakeKey())
}

func (s *RedisStore) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("credential store: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("failed to store entry")
		return fmt.Errorf("credential store: set %s: %w", key, err)
	}
	s.logger.WithFields(logrus.Fields{"key": key, "ttl": ttl}).Debug("stored entry")
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		s.logger.WithError(err).WithField("key", key).Error("failed to load entry")
		return false, fmt.Errorf("credential store: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

func (s *RedisStore) del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("credential store: delete %s: %w", key, err)
	}
	s.logger.WithField("key", key).Debug("cleared entry")
	return nil
}
