package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeRenderComposite = "render:composite"

type RenderCompositePayload struct {
	JobID       string    `json:"job_id"`
	SourceType  string    `json:"source_type"`
	ObjectKey   string    `json:"object_key"`
	AssetDir    string    `json:"asset_dir"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	Preview     bool      `json:"preview,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewRenderCompositeTask(payload RenderCompositePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderComposite, body), nil
}

func ParseRenderCompositePayload(task *asynq.Task) (RenderCompositePayload, error) {
	var payload RenderCompositePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderCompositePayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return payload, nil
}
