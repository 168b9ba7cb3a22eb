package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	AssetDir   string
	Preview    bool
}

type Result struct {
	OutputPath string
	Bytes      int
	Width      int
	Height     int
	Pieces     int
}

// Fetcher stages the source image on local disk and returns its path.
// The cleanup func removes any staging artifacts and is always safe to
// call.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (path string, cleanup func(), err error)
}

// Emitter delivers the finished canvas bytes to their destination.
type Emitter interface {
	Emit(ctx context.Context, req Request, data []byte) (string, error)
}

// Service runs the full render for one job: fetch source, run the
// partial pipelines, emit the canvas through the codec.
type Service struct {
	fetcher Fetcher
	runner  *Runner
	emitter Emitter
}

func NewService(fetcher Fetcher, runner *Runner, emitter Emitter) (*Service, error) {
	if fetcher == nil || runner == nil || emitter == nil {
		return nil, errors.New("fetcher, runner, and emitter are required")
	}
	return &Service{fetcher: fetcher, runner: runner, emitter: emitter}, nil
}

// NewLocalService builds a Service that reads sources from local paths
// and writes canvases under outputDir.
func NewLocalService(outputDir string, opts Options) (*Service, error) {
	return NewService(LocalFileFetcher{}, NewRunner(opts), LocalFileEmitter{OutputDir: outputDir})
}

func (s *Service) Render(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if strings.TrimSpace(req.AssetDir) == "" {
		return Result{}, errors.New("asset_dir is required")
	}

	sourcePath, cleanup, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}
	defer cleanup()

	canvas, pieces, err := s.runner.Render(ctx, req.AssetDir, sourcePath)
	if err != nil {
		return Result{}, fmt.Errorf("render stage: %w", err)
	}

	data, err := canvas.Export(req.Preview)
	if err != nil {
		return Result{}, fmt.Errorf("encode stage: %w", err)
	}

	outputPath, err := s.emitter.Emit(ctx, req, data)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		OutputPath: outputPath,
		Bytes:      len(data),
		Width:      canvas.Width(),
		Height:     canvas.Height(),
		Pieces:     pieces,
	}, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) (string, func(), error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return "", func() {}, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return "", func() {}, ctx.Err()
	default:
	}

	if _, err := os.Stat(req.ObjectKey); err != nil {
		return "", func() {}, fmt.Errorf("stat input file %s: %w", req.ObjectKey, err)
	}
	return req.ObjectKey, func() {}, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, data []byte) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, "final.tif")
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
