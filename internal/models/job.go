package models

import "time"

// JobStatus is the lifecycle state of a procedure job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// Terminal reports whether s is complete or error.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// Job is one attempt to execute one named procedure against one content record.
type Job struct {
	ID              string            `json:"id" db:"id"`
	ContentID       string            `json:"content_id" db:"content_id"`
	Procedure       string            `json:"procedure" db:"procedure"`
	Status          JobStatus         `json:"status" db:"status"`
	PercentComplete int               `json:"percent_complete" db:"percent_complete"`
	Params          map[string]string `json:"params,omitempty" db:"params"`
	Reports         []string          `json:"reports,omitempty" db:"-"`
	Error           string            `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Param returns the named parameter or "" when unset.
func (j *Job) Param(name string) string {
	if j.Params == nil {
		return ""
	}
	return j.Params[name]
}
