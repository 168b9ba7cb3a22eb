package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/printmill/proofpress/internal/domain"
	"github.com/printmill/proofpress/internal/storage"
)

const SourceTypeS3Presigned = domain.SourceTypeS3Presigned

// ObjectStoreFetcher downloads the source object into a temp file so
// the runner can decode it like any local source.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) (string, func(), error) {
	if f.Storage == nil {
		return "", func() {}, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return "", func() {}, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	data, err := f.Storage.ReadObject(ctx, req.ObjectKey)
	if err != nil {
		return "", func() {}, err
	}

	tmp, err := os.CreateTemp("", "proofpress-source-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("stage source object: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write staged source: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close staged source: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// ObjectStoreEmitter uploads the finished canvas to the object store.
type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, data []byte) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	objectKey := path.Join(
		defaultOutputPrefix(e.OutputPrefix),
		sanitizePathToken(req.JobID),
		"final.tif",
	)

	if err := e.Storage.WriteObject(ctx, objectKey, data, "image/tiff"); err != nil {
		return "", err
	}
	return objectKey, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

// NewObjectStoreService builds a Service wired to the object store on
// both ends.
func NewObjectStoreService(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter, opts Options) (*Service, error) {
	return NewService(fetcher, NewRunner(opts), emitter)
}
