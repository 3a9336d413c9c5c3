// Package jobs connects the warm-up engine to the asynq broker: task
// payloads, the worker-side handlers, the cron registrations that feed
// the periodic sweeps, and the enqueue client used to fan work out per
// campaign. Scheduled handlers serialize themselves with distributed
// locks so running more than one worker never double-processes a
// mailbox or a campaign.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task types handled by the worker.
const (
	// TypeCampaignProcess runs one scheduler step for a single
	// campaign. Enqueued per campaign by the periodic sweep, with the
	// campaign id as the task id so at most one instance is queued.
	TypeCampaignProcess = "warmup:campaign-process"

	// TypeCampaignSweep fans TypeCampaignProcess out over every active
	// campaign.
	TypeCampaignSweep = "scheduled:campaign-sweep"

	// TypeInboxSweep answers unread warm-up mail in receiver inboxes.
	TypeInboxSweep = "scheduled:inbox-sweep"

	// TypeBounceSweep scans sender inboxes for bounce notifications.
	TypeBounceSweep = "scheduled:bounce-sweep"

	// TypeDailyReset zeroes the per-campaign daily send counters at
	// midnight UTC.
	TypeDailyReset = "scheduled:daily-reset"

	// TypeMetricsRollup writes the per-account daily metric rows at
	// end of day.
	TypeMetricsRollup = "scheduled:metrics-rollup"
)

// CampaignProcessPayload identifies the campaign a process task works
// on. Force bypasses the next-send-time gate, mirroring the manual
// process endpoint.
type CampaignProcessPayload struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Force      bool      `json:"force,omitempty"`
}

// NewCampaignProcessTask builds the per-campaign process task.
func NewCampaignProcessTask(campaignID uuid.UUID, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(CampaignProcessPayload{CampaignID: campaignID, Force: force})
	if err != nil {
		return nil, fmt.Errorf("marshal campaign process payload: %w", err)
	}
	return asynq.NewTask(TypeCampaignProcess, payload), nil
}

// ParseCampaignProcessPayload decodes and validates a process payload.
func ParseCampaignProcessPayload(data []byte) (*CampaignProcessPayload, error) {
	var p CampaignProcessPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal campaign process payload: %w", err)
	}
	if p.CampaignID == uuid.Nil {
		return nil, fmt.Errorf("campaign process payload missing campaign id")
	}
	return &p, nil
}
