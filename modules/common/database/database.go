package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/supabase-community/supabase-go"

	"portfolio-studio-server/modules/common/model"
)

const jobsTable = "studio_jobs"

// JobRecord - one row of studio_jobs
type JobRecord struct {
	JobID        string    `json:"job_id"`
	ModalID      string    `json:"modal_id,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	JobKind      string    `json:"job_kind"`
	JobStatus    string    `json:"job_status"`
	Operation    string    `json:"operation_name,omitempty"`
	Progress     int       `json:"progress"`
	PollAttempts int       `json:"poll_attempts"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client - Supabase access for job records
type Client struct {
	supabase *supabase.Client
	log      zerolog.Logger
}

// NewClient - Supabase client for the jobs table
func NewClient(url, serviceKey string, log zerolog.Logger) (*Client, error) {
	supabaseClient, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &Client{supabase: supabaseClient, log: log}, nil
}

// RecordFromSnapshot - maps a job snapshot onto a studio_jobs row
func RecordFromSnapshot(snap model.JobSnapshot, modalID, projectID string) JobRecord {
	return JobRecord{
		JobID:        snap.ID,
		ModalID:      modalID,
		ProjectID:    projectID,
		JobKind:      string(snap.Kind),
		JobStatus:    string(snap.Status),
		Operation:    snap.Handle,
		Progress:     snap.Progress,
		PollAttempts: snap.Attempts,
		ErrorKind:    string(snap.ErrorKind),
		ErrorMessage: snap.ErrorMessage,
		SubmittedAt:  snap.SubmittedAt.UTC(),
		UpdatedAt:    snap.UpdatedAt.UTC(),
	}
}

// InsertJob - create the row when a job is submitted
func (c *Client) InsertJob(ctx context.Context, record JobRecord) error {
	c.log.Debug().Str("job_id", record.JobID).Str("kind", record.JobKind).Msg("📝 [Database] Inserting job record")

	_, _, err := c.supabase.From(jobsTable).
		Insert(record, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", record.JobID, err)
	}
	return nil
}

// UpdateJobStatus - status, progress and failure details of an existing row
func (c *Client) UpdateJobStatus(ctx context.Context, record JobRecord) error {
	updateData := map[string]interface{}{
		"job_status":    record.JobStatus,
		"progress":      record.Progress,
		"poll_attempts": record.PollAttempts,
		"updated_at":    record.UpdatedAt,
	}
	if record.Operation != "" {
		updateData["operation_name"] = record.Operation
	}
	if record.ErrorKind != "" {
		updateData["error_kind"] = record.ErrorKind
		updateData["error_message"] = record.ErrorMessage
	}
	if model.JobStatus(record.JobStatus).IsTerminal() {
		updateData["completed_at"] = record.UpdatedAt
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "minimal", "").
		Eq("job_id", record.JobID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", record.JobID, err)
	}

	c.log.Debug().Str("job_id", record.JobID).Str("status", record.JobStatus).Msg("✅ [Database] Job record updated")
	return nil
}

// FetchJob - one job record by id
func (c *Client) FetchJob(ctx context.Context, jobID string) (*JobRecord, error) {
	data, _, err := c.supabase.From(jobsTable).
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	var records []JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return &records[0], nil
}
