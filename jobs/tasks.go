package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeCaptchaEmail delivers a captcha code by email.
	TaskTypeCaptchaEmail = "captcha:email"
	// TaskTypeCaptchaSMS delivers a captcha code by SMS.
	TaskTypeCaptchaSMS = "captcha:sms"
	// TaskTypeMessageDeliver fans a direct message out to its recipients.
	TaskTypeMessageDeliver = "message:deliver"
)

// CaptchaPayload describes a captcha delivery.
type CaptchaPayload struct {
	To     string `json:"to"`
	Code   string `json:"code"`
	Action string `json:"action"`
}

// MessagePayload describes a direct message delivery.
type MessagePayload struct {
	MessageID int64 `json:"message_id"`
}

// NewCaptchaEmailTask constructs an Asynq task for email captcha delivery.
func NewCaptchaEmailTask(payload CaptchaPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCaptchaEmail, data), nil
}

// NewCaptchaSMSTask constructs an Asynq task for SMS captcha delivery.
func NewCaptchaSMSTask(payload CaptchaPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCaptchaSMS, data), nil
}

// NewMessageDeliverTask constructs an Asynq task for message delivery.
func NewMessageDeliverTask(payload MessagePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMessageDeliver, data), nil
}

// Enqueuer submits tasks through an Asynq client.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueCaptchaEmail queues an email captcha delivery.
func (e *Enqueuer) EnqueueCaptchaEmail(ctx context.Context, to, code, action string) error {
	task, err := NewCaptchaEmailTask(CaptchaPayload{To: to, Code: code, Action: action})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueCaptchaSMS queues an SMS captcha delivery.
func (e *Enqueuer) EnqueueCaptchaSMS(ctx context.Context, to, code, action string) error {
	task, err := NewCaptchaSMSTask(CaptchaPayload{To: to, Code: code, Action: action})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueMessageDeliver queues a direct message delivery.
func (e *Enqueuer) EnqueueMessageDeliver(ctx context.Context, messageID int64) error {
	task, err := NewMessageDeliverTask(MessagePayload{MessageID: messageID})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}
