package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/printmill/proofpress/internal/domain"
)

// Conventional layout filenames probed inside an asset directory, in
// order of preference.
var layoutBasenames = []string{"layout.png", "layout.tif", "layout_cmyka.tif"}

const configBasename = "config.json"

// Runner drives one render: load the source once, run every partial's
// steps against its own clone, then composite the pieces and the
// layout decoration onto a shared canvas. Partials execute
// sequentially; configuration order is paint order.
type Runner struct {
	opts Options
}

func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Render executes the asset directory's config.json against the
// source image at inputPath and returns the finished canvas, ready to
// save, along with the number of pieces composited. Any hard failure
// aborts the whole run; only missing or unreadable masks are passed
// through.
func (r *Runner) Render(ctx context.Context, assetDir, inputPath string) (Processor, int, error) {
	logger := r.opts.logger()

	cfgData, err := os.ReadFile(filepath.Join(assetDir, configBasename))
	if err != nil {
		return nil, 0, fmt.Errorf("read layout config: %w", err)
	}
	cfg, err := domain.ParseLayoutConfig(cfgData)
	if err != nil {
		return nil, 0, fmt.Errorf("parse layout config: %w", err)
	}

	base, err := NewSourceProcessor(inputPath, r.opts)
	if err != nil {
		return nil, 0, fmt.Errorf("load source: %w", err)
	}

	layoutPath, err := findLayout(assetDir)
	if err != nil {
		return nil, 0, err
	}
	canvas, layout, err := base.LoadLayout(layoutPath)
	if err != nil {
		return nil, 0, err
	}

	type piece struct {
		proc Processor
		loc  domain.Location
		id   string
	}
	pieces := make([]piece, 0, len(cfg.Partials))

	for _, partial := range cfg.Partials {
		logger.Printf("processing partial id=%s steps=%d", partial.ID, len(partial.Steps))
		proc := base.Clone()

		for idx, step := range partial.Steps {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			default:
			}

			logger.Printf("processing step partial=%s index=%d action=%s", partial.ID, idx, step.Action)
			if err := r.applyStep(proc, step, assetDir); err != nil {
				return nil, 0, fmt.Errorf("partial %s step %d action=%s: %w", partial.ID, idx, step.Action, err)
			}

			if r.opts.DebugDir != "" {
				r.snapshot(proc, partial.ID, idx, step.Action)
			}
		}

		pieces = append(pieces, piece{proc: proc, loc: partial.Location, id: partial.ID})
	}

	for _, pc := range pieces {
		if err := canvas.Composite(pc.proc, pc.loc.Left, pc.loc.Top); err != nil {
			return nil, 0, fmt.Errorf("composite partial %s: %w", pc.id, err)
		}
	}
	if err := canvas.Composite(layout, 0, 0); err != nil {
		return nil, 0, fmt.Errorf("composite layout: %w", err)
	}

	return canvas, len(pieces), nil
}

func (r *Runner) applyStep(proc Processor, step domain.Step, assetDir string) error {
	switch step.Action {
	case domain.ActionMask:
		return proc.EraseByMask(filepath.Join(assetDir, step.Mask.Path))
	case domain.ActionCrop:
		c := step.Crop
		return proc.Crop(c.Left, c.Top, c.Width, c.Height, c.Auto)
	case domain.ActionResize:
		return proc.Resize(step.Resize.Width, step.Resize.Height)
	case domain.ActionRotate:
		return proc.Rotate(step.Rotate.Angle)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, step.Action)
	}
}

// snapshot writes a per-step debug image. Diagnostic output only;
// failures are logged and never abort the run.
func (r *Runner) snapshot(proc Processor, partialID string, idx int, action domain.StepAction) {
	name := fmt.Sprintf("debug_%s_%d_%s.tif", partialID, idx, action)
	path := filepath.Join(r.opts.DebugDir, name)
	if err := os.MkdirAll(r.opts.DebugDir, 0o755); err != nil {
		r.opts.logger().Printf("debug snapshot dir failed path=%s err=%v", r.opts.DebugDir, err)
		return
	}
	if err := proc.Save(path, true); err != nil {
		r.opts.logger().Printf("debug snapshot failed path=%s err=%v", path, err)
	}
}

func findLayout(assetDir string) (string, error) {
	for _, name := range layoutBasenames {
		path := filepath.Join(assetDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no layout image in %s (tried %v)", assetDir, layoutBasenames)
}
