package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// cronEntries drives the periodic work. Times are UTC; the daily reset
// and the metrics roll-up bracket the sending day.
var cronEntries = []struct {
	spec     string
	taskType string
}{
	{"@every 2h", TypeCampaignSweep},
	{"@every 30m", TypeInboxSweep},
	{"@every 45m", TypeBounceSweep},
	{"0 0 * * *", TypeDailyReset},
	{"59 23 * * *", TypeMetricsRollup},
}

// Cron owns the periodic task registrations.
type Cron struct {
	scheduler *asynq.Scheduler
}

// NewCron creates the cron scheduler on the given Redis connection.
func NewCron(redisOpt asynq.RedisConnOpt) *Cron {
	return &Cron{
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC}),
	}
}

// Register installs every periodic entry.
func (c *Cron) Register() error {
	for _, entry := range cronEntries {
		if _, err := c.scheduler.Register(entry.spec, asynq.NewTask(entry.taskType, nil)); err != nil {
			return fmt.Errorf("register %s: %w", entry.taskType, err)
		}
		log.Printf("[Jobs] Scheduled %s (%s)", entry.taskType, entry.spec)
	}
	return nil
}

// Start launches the scheduler loop.
func (c *Cron) Start() error {
	return c.scheduler.Start()
}

// Shutdown stops the scheduler loop.
func (c *Cron) Shutdown() {
	c.scheduler.Shutdown()
}
