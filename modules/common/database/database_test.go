package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"portfolio-studio-server/modules/common/logger"
	"portfolio-studio-server/modules/common/model"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	prefer string
	body   map[string]any
}

func newTestClient(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*Client, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req := capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			prefer: r.Header.Get("Prefer"),
		}
		if len(raw) > 0 {
			json.Unmarshal(raw, &req.body)
		}
		mu.Lock()
		captured = append(captured, req)
		mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "service-key", logger.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, &captured
}

func TestRecordFromSnapshot(t *testing.T) {
	submitted := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	snap := model.JobSnapshot{
		ID:           "job-1",
		Kind:         model.KindVideoGenerate,
		Status:       model.StatusFailed,
		Handle:       "operations/abc",
		Progress:     40,
		Attempts:     4,
		ErrorKind:    model.KindTimeout,
		ErrorMessage: "gave up",
		SubmittedAt:  submitted,
		UpdatedAt:    submitted.Add(time.Minute),
	}
	rec := RecordFromSnapshot(snap, "modal-1", "proj-1")
	if rec.JobKind != "video-generate" || rec.JobStatus != "failed" || rec.ErrorKind != "timeout" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.SubmittedAt.Location() != time.UTC || !rec.SubmittedAt.Equal(submitted) {
		t.Fatalf("submitted_at = %v", rec.SubmittedAt)
	}
	if rec.ModalID != "modal-1" || rec.ProjectID != "proj-1" || rec.Operation != "operations/abc" {
		t.Fatalf("record ids = %+v", rec)
	}
}

func TestInsertAndUpdateJob(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	ctx := context.Background()
	now := time.Now()

	rec := JobRecord{JobID: "job-1", JobKind: "image-edit", JobStatus: "running", SubmittedAt: now, UpdatedAt: now}
	if err := client.InsertJob(ctx, rec); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	rec.JobStatus = "succeeded"
	rec.Progress = 100
	if err := client.UpdateJobStatus(ctx, rec); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	reqs := *captured
	if len(reqs) != 2 {
		t.Fatalf("requests = %d", len(reqs))
	}
	insert := reqs[0]
	if insert.method != http.MethodPost || insert.path != "/rest/v1/studio_jobs" || insert.prefer != "return=minimal" {
		t.Fatalf("insert = %+v", insert)
	}
	if insert.body["job_id"] != "job-1" || insert.body["job_status"] != "running" {
		t.Fatalf("insert body = %v", insert.body)
	}

	update := reqs[1]
	if update.method != http.MethodPatch || update.query != "job_id=eq.job-1" {
		t.Fatalf("update = %+v", update)
	}
	if update.body["job_status"] != "succeeded" || update.body["progress"] != float64(100) {
		t.Fatalf("update body = %v", update.body)
	}
	if _, ok := update.body["completed_at"]; !ok {
		t.Fatal("terminal update without completed_at")
	}
	if _, ok := update.body["error_kind"]; ok {
		t.Fatal("error_kind sent for a successful job")
	}
}

func TestFetchJob(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("job_id") == "eq.job-1" {
			io.WriteString(w, `[{"job_id":"job-1","job_kind":"image-edit","job_status":"succeeded","progress":100,"poll_attempts":0,"submitted_at":"2026-03-01T00:00:00Z","updated_at":"2026-03-01T00:00:05Z"}]`)
			return
		}
		io.WriteString(w, `[]`)
	})
	ctx := context.Background()

	rec, err := client.FetchJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("FetchJob: %v", err)
	}
	if rec.JobStatus != "succeeded" || rec.Progress != 100 {
		t.Fatalf("record = %+v", rec)
	}
	if _, err := client.FetchJob(ctx, "job-2"); err == nil {
		t.Fatal("missing job fetched")
	}
}

func TestSupabaseErrorSurfaces(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"42P01","message":"relation \"studio_jobs\" does not exist"}`)
	})
	err := client.InsertJob(context.Background(), JobRecord{JobID: "job-1"})
	if err == nil || errors.Unwrap(err) == nil {
		t.Fatalf("err = %v", err)
	}
}
