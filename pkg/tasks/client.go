package tasks

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues background tasks. It wraps asynq so callers never build
// raw tasks themselves.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisAddr, password string, db int) *Client {
	return &Client{
		inner: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		}),
	}
}

func (c *Client) EnqueueDocumentProcess(payload DocumentProcessPayload) (string, error) {
	task, err := NewDocumentProcessTask(payload)
	if err != nil {
		return "", err
	}

	info, err := c.inner.Enqueue(task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue document process task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) EnqueueGapFollowUp(payload GapFollowUpPayload, dueAt time.Time) (string, error) {
	task, err := NewGapFollowUpTask(payload, dueAt)
	if err != nil {
		return "", err
	}

	info, err := c.inner.Enqueue(task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue gap follow-up task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}
