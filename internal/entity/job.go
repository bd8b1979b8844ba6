package entity

import (
	"time"

	"github.com/karelmartinek-a11y/kajovospend/constants"
)

// Job is one queued unit of work: a path to drive through the pipeline.
type Job struct {
	ID         int64
	Path       string
	SHA256     string
	Status     constants.JobStatus
	Error      string
	TraceID    string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ServiceState is the singleton service snapshot exposed by the control
// protocol. The coordinator is its only writer.
type ServiceState struct {
	Running     bool       `json:"running"`
	LastSuccess *time.Time `json:"last_success"`
	LastError   string     `json:"last_error"`
	LastErrorAt *time.Time `json:"last_error_at"`
	QueueSize   int        `json:"queue_size"`
	LastSeen    *time.Time `json:"last_seen"`
	Inflight    int        `json:"inflight"`
	MaxWorkers  int        `json:"max_workers"`
	Phase       string     `json:"phase"` // idle / scanning / dispatching / processing / shutdown
	HeartbeatAt *time.Time `json:"heartbeat_at"`
}
