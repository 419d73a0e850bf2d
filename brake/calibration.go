package brake

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidCalibration = errors.New("brake: invalid calibration")

// Variant selects the command record layout a vehicle expects.
type Variant int

const (
	// SingleChannel vehicles take one fixed-point pedal command.
	SingleChannel Variant = iota
	// DualChannel vehicles take two spoof voltages, one per pedal sensor line.
	DualChannel
)

func (v Variant) String() string {
	switch v {
	case SingleChannel:
		return "single_channel"
	case DualChannel:
		return "dual_channel"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant accepts the names produced by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single_channel", "single":
		return SingleChannel, nil
	case "dual_channel", "dual":
		return DualChannel, nil
	default:
		return 0, fmt.Errorf("%w: unknown variant %q", ErrInvalidCalibration, s)
	}
}

// UnmarshalYAML lets profile files spell the variant by name.
func (v *Variant) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseVariant(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Variant) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

// SpoofChannel is the voltage window of one emulated pedal sensor line.
type SpoofChannel struct {
	VoltageMin float64 `yaml:"voltage_min"`
	VoltageMax float64 `yaml:"voltage_max"`
}

// Range is the channel's DAC step window at the given scale.
func (c SpoofChannel) Range(stepsPerVolt float64) (lo, hi uint16) {
	return saturate16(c.VoltageMin * stepsPerVolt), saturate16(c.VoltageMax * stepsPerVolt)
}

// Calibration holds the per-vehicle constants used by Encode. It is loaded
// once at startup and never mutated afterwards.
//
// For SingleChannel, MinCommand and MaxCommand are counts of the fixed-point
// pedal command. For DualChannel they bound the normalized pedal position
// and the spoof fields are bounded by each channel's Range.
type Calibration struct {
	Name         string       `yaml:"name"`
	Variant      Variant      `yaml:"variant"`
	MinCommand   float64      `yaml:"min_command"`
	MaxCommand   float64      `yaml:"max_command"`
	StepsPerVolt float64      `yaml:"steps_per_volt,omitempty"`
	SpoofHigh    SpoofChannel `yaml:"spoof_high,omitempty"`
	SpoofLow     SpoofChannel `yaml:"spoof_low,omitempty"`
}

func (c Calibration) Validate() error {
	if !finite(c.MinCommand) || !finite(c.MaxCommand) || c.MinCommand < 0 || c.MinCommand > c.MaxCommand {
		return fmt.Errorf("%w: %s: command range [%v, %v]", ErrInvalidCalibration, c.Name, c.MinCommand, c.MaxCommand)
	}

	switch c.Variant {
	case SingleChannel:
		if c.MaxCommand > math.MaxUint16 {
			return fmt.Errorf("%w: %s: max_command %v exceeds 16 bits", ErrInvalidCalibration, c.Name, c.MaxCommand)
		}
		if c.MinCommand != math.Trunc(c.MinCommand) || c.MaxCommand != math.Trunc(c.MaxCommand) {
			return fmt.Errorf("%w: %s: command bounds must be whole counts", ErrInvalidCalibration, c.Name)
		}
	case DualChannel:
		if c.MaxCommand > 1 {
			return fmt.Errorf("%w: %s: max_command %v above full pedal", ErrInvalidCalibration, c.Name, c.MaxCommand)
		}
		if !finite(c.StepsPerVolt) || c.StepsPerVolt <= 0 {
			return fmt.Errorf("%w: %s: steps_per_volt %v", ErrInvalidCalibration, c.Name, c.StepsPerVolt)
		}
		for _, ch := range []struct {
			name string
			c    SpoofChannel
		}{{"spoof_high", c.SpoofHigh}, {"spoof_low", c.SpoofLow}} {
			if !finite(ch.c.VoltageMin) || !finite(ch.c.VoltageMax) ||
				ch.c.VoltageMin < 0 || ch.c.VoltageMin >= ch.c.VoltageMax {
				return fmt.Errorf("%w: %s: %s voltage window [%v, %v]",
					ErrInvalidCalibration, c.Name, ch.name, ch.c.VoltageMin, ch.c.VoltageMax)
			}
			if ch.c.VoltageMax*c.StepsPerVolt > math.MaxUint16 {
				return fmt.Errorf("%w: %s: %s exceeds 16 bit DAC range", ErrInvalidCalibration, c.Name, ch.name)
			}
		}
	default:
		return fmt.Errorf("%w: %s: %v", ErrInvalidCalibration, c.Name, c.Variant)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
