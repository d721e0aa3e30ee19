package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// SessionStore revoked access tokens
//
// Design notes:
//  1. tokens are stateless JWTs issued elsewhere; a blacklist is the only way
//     to revoke one before it expires
//  2. key: blacklist:{sha256(token)}, TTL = the token's remaining lifetime, so
//     entries clean themselves up
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates the store
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}

// AddToBlacklist revokes token for ttl; a non-positive ttl means it already expired
func (s *SessionStore) AddToBlacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, blacklistKey(token), "revoked", ttl).Err(); err != nil {
		return apperrors.Wrap(err, "failed to revoke token")
	}
	return nil
}

// IsInBlacklist reports whether token was revoked
func (s *SessionStore) IsInBlacklist(ctx context.Context, token string) (bool, error) {
	exists, err := s.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check token blacklist")
	}
	return exists > 0, nil
}
