package mirror

import (
	"time"

	"github.com/google/uuid"
)

// OpCount tallies one action kind across a run.
type OpCount struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Failure is one failed action with enough detail to retry selectively.
type Failure struct {
	Path string   `json:"path"`
	Op   ActionOp `json:"op"`
	Kind string   `json:"kind"`
	Err  string   `json:"error"`
}

// Report summarizes a sync run. The run's exit status is non-zero iff
// Failed() reports true.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	MkDir OpCount `json:"mkdir"`
	Fetch OpCount `json:"fetch"`
	Skip  OpCount `json:"skip"`
	Prune OpCount `json:"prune"`

	BytesFetched int64      `json:"bytes_fetched"`
	Replaced     []string   `json:"replaced,omitempty"`
	Failures     []*Failure `json:"failures,omitempty"`

	// Planned holds the computed action list on dry runs.
	Planned []*Action `json:"planned,omitempty"`

	DryRun     bool   `json:"dry_run"`
	Generation uint64 `json:"generation"`
}

func NewReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

func (r *Report) recordFailure(ae *ActionError) {
	r.Failures = append(r.Failures, &Failure{
		Path: ae.Path,
		Op:   ae.Op,
		Kind: errKind(ae.Err),
		Err:  ae.Err.Error(),
	})
}

// JSON renders the report for machine consumption.
func (r *Report) JSON() ([]byte, error) {
	return jsonMarshal(r)
}
