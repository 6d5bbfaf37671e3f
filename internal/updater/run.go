package updater

import "time"

// Phase is the orchestrator state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseChecking   Phase = "checking"
	PhaseUpToDate   Phase = "up_to_date"
	PhaseUpdating   Phase = "updating"
	PhaseRestarting Phase = "restarting"
	PhaseStopping   Phase = "stopping"
	PhaseFailed     Phase = "failed"
)

// Action is what a run was asked to do.
type Action string

const (
	ActionUpdate Action = "update"
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeUpdated        Outcome = "updated"
	OutcomeUpToDate       Outcome = "up_to_date"
	OutcomeStarted        Outcome = "started"
	OutcomeAlreadyRunning Outcome = "already_running"
	OutcomeStopped        Outcome = "stopped"
	OutcomeNotRunning     Outcome = "not_running"
	OutcomeFailed         Outcome = "failed"
)

// Run describes one orchestration run.
type Run struct {
	ID            string    `json:"id"`
	Action        Action    `json:"action"`
	Forced        bool      `json:"forced"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       Outcome   `json:"outcome"`
	Message       string    `json:"message"`
	LocalVersion  string    `json:"local_version,omitempty"`
	RemoteVersion string    `json:"remote_version,omitempty"`
	Downloaded    int64     `json:"downloaded_bytes,omitempty"`
	PID           int       `json:"pid,omitempty"`
	ErrorKind     Kind      `json:"error_kind,omitempty"`
}

func (r Run) Failed() bool { return r.Outcome == OutcomeFailed }

func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
