// Package batch renders a whole catalog of composites from a CSV
// manifest. Each row names an item and the asset set to render it
// against; rows are independent and a bad row never stops the run.
package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/printmill/proofpress/internal/pipeline"
)

// Row is one line of the manifest: the item identifier plus the
// product type and size that select the asset directory.
type Row struct {
	Item string
	Type string
	Size string
}

type Driver struct {
	Logger       *log.Logger
	AssetRoot    string
	DownloadsDir string
	OutputDir    string
	Preview      bool
	Opts         pipeline.Options
}

type Summary struct {
	Rendered int
	Skipped  int
}

// Run renders every row of the manifest at csvPath. The manifest has a
// header line followed by item,type,size rows. The asset directory for
// a row is <asset root>/<type>/<size> and the source image is
// <downloads>/<item>_front.png.
func (d *Driver) Run(ctx context.Context, csvPath string) (Summary, error) {
	logger := d.logger()

	f, err := os.Open(csvPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	rows, err := parseManifest(f)
	if err != nil {
		return Summary{}, err
	}

	runner := pipeline.NewRunner(d.Opts)
	var summary Summary

	for i, row := range rows {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		assetDir := filepath.Join(d.AssetRoot, row.Type, row.Size)
		inputPath := filepath.Join(d.DownloadsDir, row.Item+"_front.png")
		outputPath := filepath.Join(d.OutputDir, row.Item+".tif")

		logger.Printf("batch row=%d item=%s type=%s size=%s", i+1, row.Item, row.Type, row.Size)

		canvas, pieces, err := runner.Render(ctx, assetDir, inputPath)
		if err != nil {
			logger.Printf("batch row failed item=%s err=%v", row.Item, err)
			summary.Skipped++
			continue
		}

		if err := os.MkdirAll(d.OutputDir, 0o755); err != nil {
			return summary, fmt.Errorf("create output dir: %w", err)
		}
		if err := canvas.Save(outputPath, d.Preview); err != nil {
			logger.Printf("batch save failed item=%s err=%v", row.Item, err)
			summary.Skipped++
			continue
		}

		logger.Printf("batch rendered item=%s output=%s pieces=%d", row.Item, outputPath, pieces)
		summary.Rendered++
	}

	return summary, nil
}

func parseManifest(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}

	// Skip the header if the first row looks like one.
	start := 0
	if len(records[0]) > 0 && strings.EqualFold(strings.TrimSpace(records[0][0]), "item") {
		start = 1
	}

	rows := make([]Row, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 3 {
			return nil, fmt.Errorf("manifest row %d: expected item,type,size got %d fields", i+1, len(rec))
		}
		row := Row{
			Item: strings.TrimSpace(rec[0]),
			Type: strings.TrimSpace(rec[1]),
			Size: strings.TrimSpace(rec[2]),
		}
		if row.Item == "" || row.Type == "" || row.Size == "" {
			return nil, fmt.Errorf("manifest row %d: item, type, and size are all required", i+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (d *Driver) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.New(io.Discard, "", 0)
}
