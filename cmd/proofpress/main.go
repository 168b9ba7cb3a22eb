package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/printmill/proofpress/internal/batch"
	"github.com/printmill/proofpress/internal/imaging"
	"github.com/printmill/proofpress/internal/pipeline"
)

func main() {
	var (
		assetDir     = flag.String("assets", "", "asset directory with config.json, layout, and masks (single render)")
		input        = flag.String("input", "", "source image path (single render)")
		output       = flag.String("output", "final.tif", "output path (single render)")
		manifest     = flag.String("csv", "", "CSV manifest path (batch render)")
		assetRoot    = flag.String("asset-root", "./assets", "root of per-type asset directories (batch render)")
		downloadsDir = flag.String("downloads", "./downloads", "directory holding <item>_front.png sources (batch render)")
		outDir       = flag.String("out-dir", "./renders", "output directory (batch render)")
		debugDir     = flag.String("debug", "", "write per-step debug snapshots to this directory")
		preview      = flag.Bool("preview", false, "fast compression for proofing output")
		maskPolarity = flag.String("mask-polarity", string(imaging.MaskErases), "mask interpretation: erases or keeps")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[proofpress] ", log.LstdFlags|log.Lmsgprefix)

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("pipeline startup failed: %v", err)
	}
	defer pipeline.Shutdown()

	opts := pipeline.Options{
		Logger:       logger,
		MaskPolarity: parsePolarity(*maskPolarity),
		DebugDir:     *debugDir,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *manifest != "":
		driver := &batch.Driver{
			Logger:       logger,
			AssetRoot:    *assetRoot,
			DownloadsDir: *downloadsDir,
			OutputDir:    *outDir,
			Preview:      *preview,
			Opts:         opts,
		}
		summary, err := driver.Run(ctx, *manifest)
		if err != nil {
			logger.Fatalf("batch failed: %v", err)
		}
		logger.Printf("batch done rendered=%d skipped=%d", summary.Rendered, summary.Skipped)

	case *assetDir != "" && *input != "":
		if err := renderOne(ctx, opts, *assetDir, *input, *output, *preview); err != nil {
			logger.Fatalf("render failed: %v", err)
		}
		logger.Printf("rendered output=%s", *output)

	default:
		fmt.Fprintln(os.Stderr, "usage: proofpress -assets DIR -input IMAGE [-output PATH] | -csv MANIFEST")
		flag.PrintDefaults()
		os.Exit(2)
	}
}

func renderOne(ctx context.Context, opts pipeline.Options, assetDir, input, output string, preview bool) error {
	canvas, _, err := pipeline.NewRunner(opts).Render(ctx, assetDir, input)
	if err != nil {
		return err
	}
	return canvas.Save(output, preview)
}

func parsePolarity(value string) imaging.MaskPolarity {
	if imaging.MaskPolarity(value) == imaging.MaskKeeps {
		return imaging.MaskKeeps
	}
	return imaging.MaskErases
}
