package store

import (
	"context"

	"github.com/printmill/proofpress/internal/domain"
)

type JobStore interface {
	Create(ctx context.Context, job domain.RenderJob) error
	Get(ctx context.Context, id string) (domain.RenderJob, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.RenderJob, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
