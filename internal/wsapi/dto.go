// Package wsapi implements the Server Ws façade: job submission and
// the job-control operations (getJobInfo, getJobDetails, getJobLog,
// sendSignal, reschedule, purge, getVariables) as an HTTP+JSON API
// built on labstack/echo/v5 route groups.
package wsapi

import (
	"time"

	"github.com/testerman-project/testerman-core/internal/job"
)

// JobInfo is the summary record returned by getJobInfo and mirrored on
// the Xc bus as a JOB-EVENT payload.
type JobInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"type"`
	Owner       string `json:"username"`
	State       string `json:"state"`
	Result      *int   `json:"result,omitempty"`
	ScheduledAt string `json:"scheduled_at"`
	StartTime   string `json:"start_time,omitempty"`
	StopTime    string `json:"stop_time,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	LogPath     string `json:"log_path,omitempty"`
}

// JobDetails extends JobInfo with the output session and child ids,
// returned by getJobDetails.
type JobDetails struct {
	JobInfo
	OutputSession map[string]string `json:"output_session,omitempty"`
	SuccessChildren []int64 `json:"success_children,omitempty"`
	ErrorChildren   []int64 `json:"error_children,omitempty"`
}

// BuildJobInfo converts a job.Job into its wire representation.
func BuildJobInfo(j job.Job) JobInfo {
	info := JobInfo{
		ID:          j.ID(),
		Name:        j.Name(),
		Kind:        string(j.Kind()),
		Owner:       j.Owner(),
		State:       string(j.State()),
		ScheduledAt: j.ScheduledAt().Format(time.RFC3339),
		LogPath:     j.LogPath(),
	}
	if code, ok := j.Result(); ok {
		info.Result = &code
	}
	if t, ok := j.StartTime(); ok {
		info.StartTime = t.Format(time.RFC3339)
	}
	if t, ok := j.StopTime(); ok {
		info.StopTime = t.Format(time.RFC3339)
	}
	if p := j.Parent(); p != nil {
		id := p.ID()
		info.ParentID = &id
	}
	return info
}

// BuildJobDetails converts a job.Job into its detailed wire representation.
func BuildJobDetails(j job.Job) JobDetails {
	d := JobDetails{JobInfo: BuildJobInfo(j), OutputSession: j.OutputSession()}
	for _, c := range j.Children(job.BranchSuccess) {
		d.SuccessChildren = append(d.SuccessChildren, c.ID())
	}
	for _, c := range j.Children(job.BranchError) {
		d.ErrorChildren = append(d.ErrorChildren, c.ID())
	}
	return d
}

// SubmitRequest is the body of POST /api/v1/jobs.
type SubmitRequest struct {
	Type        job.Type          `json:"type" validate:"required,oneof=ats campaign"`
	Name        string            `json:"name" validate:"required"`
	Source      string            `json:"source" validate:"required"`
	Path        string            `json:"path" validate:"required"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Username    string            `json:"username" validate:"required"`
	Session     map[string]string `json:"session,omitempty"`
	Mapping     map[string]string `json:"mapping,omitempty"`
	Groups      []string          `json:"groups,omitempty"`
}

// SubmitResponse is returned by POST /api/v1/jobs.
type SubmitResponse struct {
	JobID int64 `json:"job_id"`
}

// SignalRequest is the body of POST /api/v1/jobs/:id/signal.
type SignalRequest struct {
	Signal job.Signal `json:"signal" validate:"required"`
}

// RescheduleRequest is the body of POST /api/v1/jobs/:id/reschedule.
type RescheduleRequest struct {
	At time.Time `json:"at" validate:"required"`
}

// PurgeRequest is the body of POST /api/v1/jobs/purge.
type PurgeRequest struct {
	OlderThanSeconds int64 `json:"older_than_seconds" validate:"required"`
}

// PurgeResponse reports how many jobs were removed.
type PurgeResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Jobs   int    `json:"jobs"`
}
