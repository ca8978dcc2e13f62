package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenManager issues and resolves opaque bearer tokens backed by Redis.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		client: client,
		ttl:    ttl,
		secret: []byte(secret),
	}
}

// Issue creates a fresh token bound to the given user.
func (tm *TokenManager) Issue(ctx context.Context, userID int64) (string, error) {
	token := tm.generateToken()
	if err := tm.client.Set(ctx, tm.redisKey(token), strconv.FormatInt(userID, 10), tm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps a token back to its user ID and slides the expiry window.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (int64, error) {
	raw, err := tm.client.Get(ctx, tm.redisKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrInvalidToken
		}
		return 0, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	_ = tm.client.Expire(ctx, tm.redisKey(token), tm.ttl).Err()
	return userID, nil
}

// Revoke deletes a token.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	if err := tm.client.Del(ctx, tm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// BearerToken extracts the bearer credential from the Authorization header.
// Returns the empty string when no credential was presented.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (tm *TokenManager) redisKey(token string) string {
	return "token:" + token
}

func (tm *TokenManager) generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(tm.secret) > 0 {
		for i := range b {
			b[i] ^= tm.secret[i%len(tm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
