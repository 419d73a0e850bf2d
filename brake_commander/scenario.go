package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Command cycle used when a scenario does not set one. The brake module
// drops out of control if it hears nothing for longer than ~50 ms.
const defaultCycleMS = 20

// Scenario is a timed brake pedal profile.
type Scenario struct {
	Meta         ScenarioMeta      `json:"meta"`
	Timing       ScenarioTiming    `json:"timing"`
	DefaultPedal float64           `json:"default_pedal"`
	Segments     []ScenarioSegment `json:"segments"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
	Profile     string `json:"profile,omitempty"` // used when -profile is not given
}

type ScenarioTiming struct {
	CycleMS   int     `json:"cycle_ms"`
	DurationS float64 `json:"duration_s"`
}

// ScenarioSegment holds the pedal over [T0, T1). With PedalEnd set the
// pedal ramps linearly from Pedal to PedalEnd. T1 < 0 runs to the end.
type ScenarioSegment struct {
	T0       float64  `json:"t0"`
	T1       float64  `json:"t1"`
	Pedal    float64  `json:"pedal"`
	PedalEnd *float64 `json:"pedal_end,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (Scenario, error) {
	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if scen.Timing.DurationS <= 0 {
		return Scenario{}, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if scen.Timing.CycleMS == 0 {
		scen.Timing.CycleMS = defaultCycleMS
	}
	if scen.Timing.CycleMS < 0 {
		return Scenario{}, fmt.Errorf("invalid cycle_ms: %d", scen.Timing.CycleMS)
	}
	for i, seg := range scen.Segments {
		if seg.T0 < 0 || (seg.T1 >= 0 && seg.T1 <= seg.T0) {
			return Scenario{}, fmt.Errorf("segment %d: invalid window [%f, %f)", i, seg.T0, seg.T1)
		}
	}

	return scen, nil
}

// EvalPedal returns the pedal position the scenario requests at time t.
// The value is not clamped here; the brake codec owns that.
func EvalPedal(scen *Scenario, t float64) float64 {
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t < seg.T0 || t >= t1 {
			continue
		}
		if seg.PedalEnd == nil || t1 <= seg.T0 {
			return seg.Pedal
		}
		frac := (t - seg.T0) / (t1 - seg.T0)
		return seg.Pedal + (*seg.PedalEnd-seg.Pedal)*frac
	}
	return scen.DefaultPedal
}
