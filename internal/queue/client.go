package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/projectsamarth/samarth/internal/config"
)

// ErrBuildPending is returned when an index build is already queued.
var ErrBuildPending = errors.New("an index build is already queued")

// Enqueuer is what the API needs from the queue.
type Enqueuer interface {
	EnqueueIndexBuild(payload IndexBuildPayload) (string, error)
}

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueIndexBuild queues a rebuild and returns the task id. At most one
// build is queued at a time.
func (c *Client) EnqueueIndexBuild(payload IndexBuildPayload) (string, error) {
	id, err := c.enqueue(TypeIndexBuild, payload,
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Hour),
		asynq.Unique(2*time.Hour),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrBuildPending
	}
	return id, err
}

func (c *Client) enqueue(taskType string, payload any, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	info, err := c.client.Enqueue(asynq.NewTask(taskType, data), opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}
