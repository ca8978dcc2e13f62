package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillcms/quill/internal/shared"
)

// Captcha action kinds.
const (
	CaptchaRegister = "register"
	CaptchaLogin    = "login"
	CaptchaRetrieve = "retrieve-password"
)

// TaskEnqueuer hands captcha delivery off to the background worker.
type TaskEnqueuer interface {
	EnqueueCaptchaEmail(ctx context.Context, to, code, action string) error
	EnqueueCaptchaSMS(ctx context.Context, to, code, action string) error
}

// CaptchaService issues and verifies one-time codes cached in Redis.
// Delivery happens asynchronously through the job queue.
type CaptchaService struct {
	client   *redis.Client
	enqueuer TaskEnqueuer
	ttl      time.Duration
	limit    time.Duration
}

// NewCaptchaService constructs a CaptchaService.
func NewCaptchaService(client *redis.Client, enqueuer TaskEnqueuer, ttl, limit time.Duration) *CaptchaService {
	return &CaptchaService{client: client, enqueuer: enqueuer, ttl: ttl, limit: limit}
}

// SendEmail generates a code for the action and queues an email delivery.
func (c *CaptchaService) SendEmail(ctx context.Context, email, action string) error {
	code, err := c.issue(ctx, action, "email:"+email)
	if err != nil {
		return err
	}
	return c.enqueuer.EnqueueCaptchaEmail(ctx, email, code, action)
}

// SendSMS generates a code for the action and queues an SMS delivery.
func (c *CaptchaService) SendSMS(ctx context.Context, phone, action string) error {
	code, err := c.issue(ctx, action, "phone:"+phone)
	if err != nil {
		return err
	}
	return c.enqueuer.EnqueueCaptchaSMS(ctx, phone, code, action)
}

// VerifyEmail checks a submitted code and consumes it on success.
func (c *CaptchaService) VerifyEmail(ctx context.Context, email, action, code string) error {
	return c.verify(ctx, action, "email:"+email, code)
}

// VerifySMS checks a submitted code and consumes it on success.
func (c *CaptchaService) VerifySMS(ctx context.Context, phone, action, code string) error {
	return c.verify(ctx, action, "phone:"+phone, code)
}

func (c *CaptchaService) issue(ctx context.Context, action, recipient string) (string, error) {
	throttleKey := c.key(action, recipient) + ":throttle"
	set, err := c.client.SetNX(ctx, throttleKey, "1", c.limit).Result()
	if err != nil {
		return "", err
	}
	if !set {
		return "", shared.ErrCaptchaThrottled
	}
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, c.key(action, recipient), code, c.ttl).Err(); err != nil {
		return "", err
	}
	return code, nil
}

func (c *CaptchaService) verify(ctx context.Context, action, recipient, code string) error {
	key := c.key(action, recipient)
	stored, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.ErrCaptchaMismatch
		}
		return err
	}
	if stored != code {
		return shared.ErrCaptchaMismatch
	}
	return c.client.Del(ctx, key).Err()
}

func (c *CaptchaService) key(action, recipient string) string {
	return "captcha:" + action + ":" + recipient
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
