package scheduler

import (
	"context"
	"time"

	"shopfloor_backend/platform/config"
	"shopfloor_backend/platform/db"

	"github.com/hibiken/asynq"
)

const snapshotMaxRetry = 5

type Client struct {
	client *asynq.Client
	queue  string
	now    func() time.Time
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueSnapshotPersist asks a worker to write the current snapshot.
func (c *Client) EnqueueSnapshotPersist(ctx context.Context, version uint64) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewSnapshotPersistTask(SnapshotPersistPayload{
		Version:     version,
		RequestedAt: c.now(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(snapshotMaxRetry),
		asynq.Timeout(30*time.Second),
	)
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := db.RedisOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
