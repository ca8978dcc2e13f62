package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenManager(t *testing.T) (*TokenManager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenManager(client, "test-secret", time.Hour), srv
}

func TestTokenIssueAndResolve(t *testing.T) {
	tm, _ := testTokenManager(t)
	ctx := context.Background()

	token, err := tm.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := tm.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestTokenResolveUnknownToken(t *testing.T) {
	tm, _ := testTokenManager(t)

	_, err := tm.Resolve(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRevoke(t *testing.T) {
	tm, _ := testTokenManager(t)
	ctx := context.Background()

	token, err := tm.Issue(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, tm.Revoke(ctx, token))

	_, err = tm.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	tm, srv := testTokenManager(t)
	ctx := context.Background()

	token, err := tm.Issue(ctx, 42)
	require.NoError(t, err)

	srv.FastForward(2 * time.Hour)
	_, err = tm.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensAreUnique(t *testing.T) {
	tm, _ := testTokenManager(t)
	ctx := context.Background()

	a, err := tm.Issue(ctx, 1)
	require.NoError(t, err)
	b, err := tm.Issue(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, BearerToken(req), tc.header)
	}
}
