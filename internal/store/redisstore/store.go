package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	authCodePrefix = "authcode:"
	draftPrefix    = "draft:"
)

// Store holds short-lived state: one-time sign-in codes and draft resume
// tokens carried across the auth redirect.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SaveAuthCode stores a one-time sign-in code for the user.
func (s *Store) SaveAuthCode(ctx context.Context, code string, userID uint64, ttl time.Duration) error {
	return s.rdb.Set(ctx, authCodePrefix+code, strconv.FormatUint(userID, 10), ttl).Err()
}

// ConsumeAuthCode exchanges a code for its user id exactly once.
// Returns redis.Nil when the code is unknown, expired, or already used.
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (uint64, error) {
	v, err := s.rdb.GetDel(ctx, authCodePrefix+code).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

// SaveDraft stores a serialized proposal draft under a resume token.
func (s *Store) SaveDraft(ctx context.Context, token string, draft []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, draftPrefix+token, draft, ttl).Err()
}

// GetDraft returns the draft for a resume token. Drafts survive reads; the
// TTL bounds their lifetime.
func (s *Store) GetDraft(ctx context.Context, token string) ([]byte, error) {
	return s.rdb.Get(ctx, draftPrefix+token).Bytes()
}
