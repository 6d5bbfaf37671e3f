package updater

import (
	"context"

	"github.com/loykin/relaunchr/internal/metrics"
	"github.com/loykin/relaunchr/internal/process"
)

// Status is a snapshot of the orchestrator and the managed process.
type Status struct {
	Busy           bool               `json:"busy"`
	Phase          Phase              `json:"phase"`
	LastRun        *Run               `json:"last_run,omitempty"`
	LocalVersion   string             `json:"local_version"`
	Instances      []process.Instance `json:"instances"`
	InstancesError string             `json:"instances_error,omitempty"`
}

// Status takes a snapshot. Instances is never nil; a listing failure is
// reported in InstancesError and leaves the instance gauges untouched.
func (o *Orchestrator) Status(ctx context.Context) Status {
	st := Status{
		Busy:         o.Busy(),
		Phase:        o.Phase(),
		LocalVersion: o.LocalVersion(),
		Instances:    []process.Instance{},
	}
	if last, ok := o.LastRun(); ok {
		st.LastRun = &last
	}
	inst, err := o.Instances(ctx)
	if err != nil {
		st.InstancesError = err.Error()
		return st
	}
	var rss uint64
	for _, in := range inst {
		rss += in.RSSBytes
	}
	metrics.SetInstances(len(inst), rss)
	if inst != nil {
		st.Instances = inst
	}
	return st
}
