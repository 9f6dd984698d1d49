package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup refreshes cached report runs.
	TaskReportsWarmup = "reports:warmup"
)

// ReportsWarmupPayload names the reports to refresh. An empty list means
// every report in the catalog.
type ReportsWarmupPayload struct {
	Reports []string `json:"reports,omitempty"`
}

// NewReportsWarmupTask constructs an Asynq task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data, asynq.MaxRetry(3), asynq.Timeout(15*time.Minute)), nil
}
