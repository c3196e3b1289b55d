package models

import "time"

// BatchRun is the full set of Tasks for one invocation plus their outcomes.
// It lives only for the duration of a run; nothing reads it back to resume.
type BatchRun struct {
	ID         string
	Total      int
	Completed  int
	Succeeded  int
	Failed     int
	Results    []TaskResult
	Artifacts  []Artifact
	StartedAt  time.Time
	FinishedAt time.Time
}

// Progress returns completed/total. An empty run is fully complete.
func (r *BatchRun) Progress() float64 {
	if r.Total == 0 {
		return 1.0
	}
	return float64(r.Completed) / float64(r.Total)
}

// Done reports whether every Task has been resolved.
func (r *BatchRun) Done() bool {
	return r.Completed == r.Total
}

// Failures returns the failed results in resolution order.
func (r *BatchRun) Failures() []TaskResult {
	var out []TaskResult
	for _, res := range r.Results {
		if res.Status == TaskFailed {
			out = append(out, res)
		}
	}
	return out
}

// FailureRecords converts the failed results to their stored form.
func (r *BatchRun) FailureRecords() []Failure {
	out := make([]Failure, 0, r.Failed)
	for _, res := range r.Failures() {
		out = append(out, Failure{
			Document: res.Task.Document.Key,
			Language: res.Task.Language,
			Stage:    string(res.Stage),
			Reason:   res.Reason,
		})
	}
	return out
}

// Snapshot copies the tallies for progress reporting.
func (r *BatchRun) Snapshot() Progress {
	return Progress{
		RunID:     r.ID,
		Total:     r.Total,
		Completed: r.Completed,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Fraction:  r.Progress(),
	}
}

// Progress is a point-in-time view of a BatchRun's tallies.
type Progress struct {
	RunID     string
	Total     int
	Completed int
	Succeeded int
	Failed    int
	Fraction  float64
}

// Run record statuses stored in Firestore.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusCancelled = "CANCELLED"
)

// Failure is the stored form of a failed TaskResult.
type Failure struct {
	Document string `json:"document" firestore:"document"`
	Language string `json:"language" firestore:"language"`
	Stage    string `json:"stage" firestore:"stage"`
	Reason   string `json:"reason" firestore:"reason"`
}

// RunRecord is the Firestore report of a batch run.
// It tracks live progress and the final breakdown for display.
type RunRecord struct {
	RunID        string     `firestore:"runId,omitempty"`
	Status       string     `firestore:"status,omitempty"`
	SourceBucket string     `firestore:"sourceBucket,omitempty"`
	OutputBucket string     `firestore:"outputBucket,omitempty"`
	Documents    []string   `firestore:"documents,omitempty"`
	Languages    []string   `firestore:"languages,omitempty"`
	Total        int        `firestore:"total"`
	Completed    int        `firestore:"completed"`
	Succeeded    int        `firestore:"succeeded"`
	Failed       int        `firestore:"failed"`
	Progress     float64    `firestore:"progress"`
	Artifacts    []Artifact `firestore:"artifacts,omitempty"`
	Failures     []Failure  `firestore:"failures,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt,omitempty"`
	FinishedAt   time.Time  `firestore:"finishedAt,omitempty"`
}
