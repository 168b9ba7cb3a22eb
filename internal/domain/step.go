package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownAction marks a step whose action is outside the closed
// vocabulary. It is a configuration error and surfaces before any
// pixel work starts.
var ErrUnknownAction = errors.New("unknown step action")

type StepAction string

const (
	ActionMask   StepAction = "mask"
	ActionCrop   StepAction = "crop"
	ActionResize StepAction = "resize"
	ActionRotate StepAction = "rotate"
)

// Step is one operation of a partial's pipeline. Exactly one of the
// parameter fields is set, matching Action; the shape is validated
// when the configuration is parsed, not when the step runs.
type Step struct {
	Action StepAction
	Mask   *MaskStep
	Crop   *CropStep
	Resize *ResizeStep
	Rotate *RotateStep
}

// MaskStep erases the area an external mask image covers. Path is
// relative to the asset directory.
type MaskStep struct {
	Path string
}

// CropStep cuts a rectangle out of the piece, or the tight bounding
// box of its coverage when Auto is set.
type CropStep struct {
	Top    int  `json:"top"`
	Left   int  `json:"left"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
	Auto   bool `json:"auto,omitempty"`
}

type ResizeStep struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type RotateStep struct {
	Angle float64
}

type rawStep struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw rawStep
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode step: %w", err)
	}

	switch StepAction(raw.Action) {
	case ActionMask:
		var path string
		if err := json.Unmarshal(raw.Data, &path); err != nil {
			return fmt.Errorf("mask step data must be a path string: %w", err)
		}
		if path == "" {
			return errors.New("mask step requires a mask path")
		}
		*s = Step{Action: ActionMask, Mask: &MaskStep{Path: path}}
	case ActionCrop:
		var crop CropStep
		if err := json.Unmarshal(raw.Data, &crop); err != nil {
			return fmt.Errorf("crop step data must be a rectangle: %w", err)
		}
		if !crop.Auto && (crop.Width < 0 || crop.Height < 0) {
			return fmt.Errorf("crop step has negative size %dx%d", crop.Width, crop.Height)
		}
		*s = Step{Action: ActionCrop, Crop: &crop}
	case ActionResize:
		var resize ResizeStep
		if err := json.Unmarshal(raw.Data, &resize); err != nil {
			return fmt.Errorf("resize step data must be a size: %w", err)
		}
		if resize.Width <= 0 || resize.Height <= 0 {
			return fmt.Errorf("resize step requires positive size, got %dx%d", resize.Width, resize.Height)
		}
		*s = Step{Action: ActionResize, Resize: &resize}
	case ActionRotate:
		var angle float64
		if err := json.Unmarshal(raw.Data, &angle); err != nil {
			return fmt.Errorf("rotate step data must be an angle in degrees: %w", err)
		}
		*s = Step{Action: ActionRotate, Rotate: &RotateStep{Angle: angle}}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, raw.Action)
	}
	return nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	var data any
	switch s.Action {
	case ActionMask:
		data = s.Mask.Path
	case ActionCrop:
		data = s.Crop
	case ActionResize:
		data = s.Resize
	case ActionRotate:
		data = s.Rotate.Angle
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, s.Action)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rawStep{Action: string(s.Action), Data: raw})
}
