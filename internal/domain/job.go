package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

// CreateRenderRequest is the API payload for a composite render. The
// step pipeline itself lives in the asset directory's config.json; the
// request only says which source image to cut pieces from and which
// asset set (layout, masks, config) to render against.
type CreateRenderRequest struct {
	SourceType string `json:"source_type"`
	ObjectKey  string `json:"object_key,omitempty"`
	AssetDir   string `json:"asset_dir"`
	WebhookURL string `json:"webhook_url,omitempty"`
	Preview    bool   `json:"preview,omitempty"`
}

type RenderJob struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	ObjectKey  string
	AssetDir   string
	WebhookURL string
	Preview    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateRenderRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if strings.TrimSpace(r.AssetDir) == "" {
		return errors.New("asset_dir is required")
	}
	return nil
}
