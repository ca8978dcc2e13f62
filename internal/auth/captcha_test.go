package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/internal/shared"
)

type recordingEnqueuer struct {
	emails []string
	codes  []string
}

func (r *recordingEnqueuer) EnqueueCaptchaEmail(ctx context.Context, to, code, action string) error {
	r.emails = append(r.emails, to)
	r.codes = append(r.codes, code)
	return nil
}

func (r *recordingEnqueuer) EnqueueCaptchaSMS(ctx context.Context, to, code, action string) error {
	r.codes = append(r.codes, code)
	return nil
}

func testCaptchaService(t *testing.T) (*CaptchaService, *recordingEnqueuer, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	enq := &recordingEnqueuer{}
	return NewCaptchaService(client, enq, 5*time.Minute, time.Minute), enq, srv
}

func TestCaptchaSendAndVerify(t *testing.T) {
	svc, enq, _ := testCaptchaService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "alice@example.com", CaptchaRegister))
	require.Len(t, enq.codes, 1)
	code := enq.codes[0]
	assert.Len(t, code, 6)

	require.NoError(t, svc.VerifyEmail(ctx, "alice@example.com", CaptchaRegister, code))

	// Codes are single use.
	err := svc.VerifyEmail(ctx, "alice@example.com", CaptchaRegister, code)
	assert.ErrorIs(t, err, shared.ErrCaptchaMismatch)
}

func TestCaptchaVerifyWrongCode(t *testing.T) {
	svc, enq, _ := testCaptchaService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "alice@example.com", CaptchaRegister))
	require.Len(t, enq.codes, 1)

	err := svc.VerifyEmail(ctx, "alice@example.com", CaptchaRegister, "000000")
	if enq.codes[0] == "000000" {
		t.Skip("generated code collided with the guess")
	}
	assert.ErrorIs(t, err, shared.ErrCaptchaMismatch)
}

func TestCaptchaActionsAreIsolated(t *testing.T) {
	svc, enq, _ := testCaptchaService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "alice@example.com", CaptchaRegister))
	code := enq.codes[0]

	err := svc.VerifyEmail(ctx, "alice@example.com", CaptchaLogin, code)
	assert.ErrorIs(t, err, shared.ErrCaptchaMismatch)
}

func TestCaptchaThrottle(t *testing.T) {
	svc, _, srv := testCaptchaService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "alice@example.com", CaptchaRegister))
	err := svc.SendEmail(ctx, "alice@example.com", CaptchaRegister)
	assert.ErrorIs(t, err, shared.ErrCaptchaThrottled)

	// After the throttle window a fresh code goes out.
	srv.FastForward(2 * time.Minute)
	assert.NoError(t, svc.SendEmail(ctx, "alice@example.com", CaptchaRegister))
}

func TestCaptchaExpires(t *testing.T) {
	svc, enq, srv := testCaptchaService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "alice@example.com", CaptchaRegister))
	srv.FastForward(10 * time.Minute)

	err := svc.VerifyEmail(ctx, "alice@example.com", CaptchaRegister, enq.codes[0])
	assert.ErrorIs(t, err, shared.ErrCaptchaMismatch)
}
