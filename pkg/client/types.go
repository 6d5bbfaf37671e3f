package client

import "time"

// Run is one orchestration run as reported by the daemon.
type Run struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Forced        bool      `json:"forced"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       string    `json:"outcome"`
	Message       string    `json:"message"`
	LocalVersion  string    `json:"local_version,omitempty"`
	RemoteVersion string    `json:"remote_version,omitempty"`
	Downloaded    int64     `json:"downloaded_bytes,omitempty"`
	PID           int       `json:"pid,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
}

// Failed reports whether the run ended in failure.
func (r Run) Failed() bool { return r.Outcome == "failed" }

// Instance is one running copy of the managed executable.
type Instance struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	Exe        string    `json:"exe,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}

// Status is the daemon's view of the orchestrator and the managed process.
type Status struct {
	Busy           bool       `json:"busy"`
	Phase          string     `json:"phase"`
	LastRun        *Run       `json:"last_run,omitempty"`
	LocalVersion   string     `json:"local_version"`
	Instances      []Instance `json:"instances"`
	InstancesError string     `json:"instances_error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type updateResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

type logsResponse struct {
	Lines []string `json:"lines"`
}
