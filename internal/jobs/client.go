package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// campaignTaskTimeout bounds one scheduler step. A full batch can sleep
// up to ten minutes between slots, so the ceiling is generous.
const campaignTaskTimeout = 30 * time.Minute

// Client enqueues warm-up tasks onto the broker.
type Client struct {
	client *asynq.Client
}

// NewClient creates an enqueue client on the given Redis connection.
func NewClient(redisOpt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpt)}
}

// EnqueueCampaignProcess queues one scheduler step for the campaign.
// The campaign id doubles as the task id, so a campaign that is already
// queued or running yields asynq.ErrTaskIDConflict instead of a
// duplicate task.
func (c *Client) EnqueueCampaignProcess(ctx context.Context, campaignID uuid.UUID, force bool) error {
	task, err := NewCampaignProcessTask(campaignID, force)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("campaign-process:%s", campaignID)),
		asynq.Timeout(campaignTaskTimeout),
		asynq.MaxRetry(5),
	)
	return err
}

// Close releases the underlying broker connection.
func (c *Client) Close() error {
	return c.client.Close()
}
