package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server processing delivery tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Mailer    Mailer
	Texter    Texter
}

// Mailer sends transactional email. The SMTP integration lives behind this
// interface so the worker can run against a placeholder in development.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// Texter sends SMS messages.
type Texter interface {
	SendSMS(ctx context.Context, to, body string) error
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	w := &Worker{server: srv, mux: asynq.NewServeMux(), logger: cfg.Logger}
	w.mux.HandleFunc(TaskTypeCaptchaEmail, w.handleCaptchaEmail(cfg.Mailer))
	w.mux.HandleFunc(TaskTypeCaptchaSMS, w.handleCaptchaSMS(cfg.Texter))
	w.mux.HandleFunc(TaskTypeMessageDeliver, w.handleMessageDeliver)
	return w, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (w *Worker) handleCaptchaEmail(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CaptchaPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if mailer == nil {
			w.logger.Info("captcha email (no mailer configured)",
				slog.String("to", payload.To), slog.String("action", payload.Action))
			return nil
		}
		return mailer.SendMail(ctx, payload.To, "Your verification code", "Code: "+payload.Code)
	}
}

func (w *Worker) handleCaptchaSMS(texter Texter) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CaptchaPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if texter == nil {
			w.logger.Info("captcha sms (no texter configured)",
				slog.String("to", payload.To), slog.String("action", payload.Action))
			return nil
		}
		return texter.SendSMS(ctx, payload.To, "Your verification code: "+payload.Code)
	}
}

func (w *Worker) handleMessageDeliver(ctx context.Context, t *asynq.Task) error {
	var payload MessagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Recipients poll their inbox; delivery is recorded by the messages
	// service when the task is enqueued. Kept as a hook for push transports.
	w.logger.Info("message delivered", slog.Int64("message_id", payload.MessageID))
	return nil
}
