package domain

import (
	"encoding/json"
	"fmt"
)

// Location is the canvas-space offset of a piece's top-left corner
// after all of its steps have run.
type Location struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// Partial is one configured piece: an ordered step list plus where the
// finished piece lands on the canvas. Partials are composited in
// configuration order, so a later partial paints over an earlier one.
type Partial struct {
	ID       string   `json:"id"`
	Steps    []Step   `json:"steps"`
	Location Location `json:"location"`
}

func (p *Partial) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string            `json:"id"`
		Steps    []json.RawMessage `json:"steps"`
		Location Location          `json:"location"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	steps := make([]Step, len(raw.Steps))
	for i, rawStep := range raw.Steps {
		if err := json.Unmarshal(rawStep, &steps[i]); err != nil {
			return fmt.Errorf("partial %q step %d: %w", raw.ID, i, err)
		}
	}

	p.ID = raw.ID
	p.Steps = steps
	p.Location = raw.Location
	return nil
}

// LayoutConfig is the declarative document driving one render: the
// list of partials to cut from the source and place on the layout.
type LayoutConfig struct {
	Partials []Partial `json:"partials"`
}

// ParseLayoutConfig decodes and validates a config.json document.
// Malformed steps fail here, before any image is touched.
func ParseLayoutConfig(data []byte) (LayoutConfig, error) {
	var cfg LayoutConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return LayoutConfig{}, err
	}
	for i, partial := range cfg.Partials {
		if partial.ID == "" {
			return LayoutConfig{}, fmt.Errorf("partials[%d] is missing an id", i)
		}
	}
	return cfg, nil
}
