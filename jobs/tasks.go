package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportAgingWarmup pre-computes aging reports so the first
	// interactive request after a quiet period hits a warm cache.
	TaskReportAgingWarmup = "report:aging_warmup"
)

// AgingWarmupPayload selects which report variants to warm. Empty Modes warms
// both aging modes.
type AgingWarmupPayload struct {
	Modes   []string `json:"modes,omitempty"`
	NetDays int      `json:"netDays,omitempty"`
}

// NewAgingWarmupTask constructs an Asynq task.
func NewAgingWarmupTask(payload AgingWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportAgingWarmup, data), nil
}
