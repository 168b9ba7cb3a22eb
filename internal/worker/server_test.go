package worker

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/printmill/proofpress/internal/domain"
	"github.com/printmill/proofpress/internal/pipeline"
	"github.com/printmill/proofpress/internal/store"
)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	if err := jobStore.Create(context.Background(), domain.RenderJob{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusProcessing,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "source.png",
		AssetDir:   "tshirt/M",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "job-1", pipeline.Result{
		Width:  300,
		Height: 200,
		Pieces: 3,
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.PixelsComposited != 60_000 {
		t.Fatalf("expected pixels_composited=60000, got %d", usageStore.log.PixelsComposited)
	}
	if usageStore.log.PiecesRendered != 3 {
		t.Fatalf("expected pieces_rendered=3, got %d", usageStore.log.PiecesRendered)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageDefaultsAnonymousUser(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "job-2", pipeline.Result{Width: 5, Height: 5}, 0)

	if usageStore.log.UserID != "anonymous" {
		t.Fatalf("expected user_id=anonymous, got %s", usageStore.log.UserID)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestResolveAssetDirAnchorsRelativePaths(t *testing.T) {
	s := &Server{assetRoot: "/srv/assets"}

	if got := s.resolveAssetDir("tshirt/M"); got != "/srv/assets/tshirt/M" {
		t.Fatalf("relative asset dir should be anchored, got %s", got)
	}
	if got := s.resolveAssetDir("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute asset dir should pass through, got %s", got)
	}

	bare := &Server{}
	if got := bare.resolveAssetDir("tshirt/M"); got != "tshirt/M" {
		t.Fatalf("no asset root should pass through, got %s", got)
	}
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}
