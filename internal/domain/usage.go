package domain

import "time"

type UsageLog struct {
	UserID           string
	JobID            string
	PixelsComposited int64
	PiecesRendered   int64
	ComputeTimeMS    int64
	CreatedAt        time.Time
}
