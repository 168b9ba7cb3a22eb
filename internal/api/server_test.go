package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/printmill/proofpress/internal/domain"
	"github.com/printmill/proofpress/internal/queue"
	"github.com/printmill/proofpress/internal/store"
)

type stubEnqueuer struct {
	payload queue.RenderCompositePayload
	called  bool
}

func (s *stubEnqueuer) EnqueueRenderComposite(_ context.Context, payload queue.RenderCompositePayload) (*asynq.TaskInfo, error) {
	s.called = true
	s.payload = payload
	return &asynq.TaskInfo{ID: "task-1", Queue: "default", State: asynq.TaskStatePending}, nil
}

type stubStorage struct {
	exists bool
}

func (s stubStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://minio.local/" + objectKey + "?signed", nil
}

func (s stubStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return s.exists, nil
}

func newTestServer(t *testing.T, enqueuer *stubEnqueuer, storage objectStorage) (*Server, *store.MemoryJobStore) {
	t.Helper()
	jobStore := store.NewMemoryJobStore()
	logger := log.New(io.Discard, "", 0)
	return NewServer(logger, enqueuer, jobStore, storage, Options{}), jobStore
}

func TestExtractJobIDFromStartPath(t *testing.T) {
	jobID, err := extractJobIDFromStartPath("/v1/renders/abc123/start")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if jobID != "abc123" {
		t.Fatalf("expected abc123, got %s", jobID)
	}

	if _, err := extractJobIDFromStartPath("/v1/renders/abc123"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &stubEnqueuer{}, stubStorage{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateRenderLocalFile(t *testing.T) {
	srv, jobStore := newTestServer(t, &stubEnqueuer{}, stubStorage{})

	body := `{"source_type":"local_file","object_key":"/tmp/in.png","asset_dir":"tshirt/M","preview":true}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/renders", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.JobStatusCreated {
		t.Fatalf("status = %s, want created", resp.Status)
	}

	job, ok, err := jobStore.Get(context.Background(), resp.JobID)
	if err != nil || !ok {
		t.Fatalf("job not persisted: ok=%v err=%v", ok, err)
	}
	if job.AssetDir != "tshirt/M" || !job.Preview {
		t.Fatalf("job fields not persisted: %+v", job)
	}
}

func TestCreateRenderPresignedGetsUploadURL(t *testing.T) {
	srv, _ := newTestServer(t, &stubEnqueuer{}, stubStorage{})

	body := `{"source_type":"s3_presigned","asset_dir":"mug/std"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/renders", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Upload struct {
			ObjectKey string `json:"object_key"`
			PutURL    string `json:"presigned_put_url"`
			State     string `json:"presigned_url_state"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Upload.State != "ready" || resp.Upload.PutURL == "" {
		t.Fatalf("expected ready upload URL, got %+v", resp.Upload)
	}
	if !strings.HasPrefix(resp.Upload.ObjectKey, "uploads/") {
		t.Fatalf("object key should live under uploads/, got %s", resp.Upload.ObjectKey)
	}
}

func TestCreateRenderRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, &stubEnqueuer{}, stubStorage{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/renders", strings.NewReader(`{"source_type":"ftp"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStartRenderEnqueuesJob(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "in.png")
	if err := os.WriteFile(sourcePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	enqueuer := &stubEnqueuer{}
	srv, jobStore := newTestServer(t, enqueuer, stubStorage{})

	if err := jobStore.Create(context.Background(), domain.RenderJob{
		ID:         "job-9",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  sourcePath,
		AssetDir:   "tshirt/M",
		Preview:    true,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/renders/job-9/start", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if !enqueuer.called {
		t.Fatal("expected job to be enqueued")
	}
	if enqueuer.payload.JobID != "job-9" || enqueuer.payload.AssetDir != "tshirt/M" || !enqueuer.payload.Preview {
		t.Fatalf("enqueue payload drifted: %+v", enqueuer.payload)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-9")
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("job status = %s, want queued", job.Status)
	}
}

func TestStartRenderMissingSourceConflicts(t *testing.T) {
	srv, jobStore := newTestServer(t, &stubEnqueuer{}, stubStorage{exists: false})

	if err := jobStore.Create(context.Background(), domain.RenderJob{
		ID:         "job-8",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-8/source",
		AssetDir:   "mug/std",
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/renders/job-8/start", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestStartRenderUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t, &stubEnqueuer{}, stubStorage{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/renders/nope/start", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
