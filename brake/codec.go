package brake

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// CommandRecord is one brake command ready for transmission. PedalCommand is
// meaningful for SingleChannel records, SpoofHigh and SpoofLow for
// DualChannel ones.
type CommandRecord struct {
	Variant      Variant
	PedalCommand uint16
	SpoofHigh    uint16
	SpoofLow     uint16
}

func (r CommandRecord) String() string {
	if r.Variant == DualChannel {
		return fmt.Sprintf("spoof_high=%d spoof_low=%d", r.SpoofHigh, r.SpoofLow)
	}
	return fmt.Sprintf("pedal_command=%d", r.PedalCommand)
}

// Frame serializes the record in the layout the actuator firmware expects:
// marker, then the little-endian u16 fields of the variant, zero padded.
func (r CommandRecord) Frame() can.Frame {
	f := markedFrame(CommandCANID)
	switch r.Variant {
	case DualChannel:
		f.Data.SetUnsignedBitsLittleEndian(16, 16, uint64(r.SpoofLow))
		f.Data.SetUnsignedBitsLittleEndian(32, 16, uint64(r.SpoofHigh))
	default:
		f.Data.SetUnsignedBitsLittleEndian(16, 16, uint64(r.PedalCommand))
	}
	return f
}

// ParseCommand decodes a command payload for the given variant. It is the
// inverse of CommandRecord.Frame and is used to inspect bus traffic.
func ParseCommand(v Variant, data []byte) (CommandRecord, error) {
	d, err := loadPayload(data)
	if err != nil {
		return CommandRecord{}, err
	}
	r := CommandRecord{Variant: v}
	switch v {
	case DualChannel:
		r.SpoofLow = uint16(d.UnsignedBitsLittleEndian(16, 16))
		r.SpoofHigh = uint16(d.UnsignedBitsLittleEndian(32, 16))
	default:
		r.PedalCommand = uint16(d.UnsignedBitsLittleEndian(16, 16))
	}
	return r, nil
}

// ClampPedal forces p into [0, 1]. NaN maps to 0 so an undefined input
// requests no braking rather than full braking.
func ClampPedal(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Encode converts a normalized pedal position into a command record.
//
// Values are always clamped before scaling and scaled before truncation, so
// every field of the result lies within its calibrated bounds for any input.
// Encode has no side effects and is safe for concurrent use. Fields of a
// calibration that fails Validate saturate at the 16 bit range rather than
// wrapping.
func (c Calibration) Encode(pedal float64) CommandRecord {
	p := ClampPedal(pedal)

	if c.Variant == DualChannel {
		cmd := clamp(p, c.MinCommand, c.MaxCommand)
		return CommandRecord{
			Variant:   DualChannel,
			SpoofHigh: c.SpoofHigh.steps(cmd, c.StepsPerVolt),
			SpoofLow:  c.SpoofLow.steps(cmd, c.StepsPerVolt),
		}
	}

	scaled := clamp(p*c.MaxCommand, c.MinCommand, c.MaxCommand)
	return CommandRecord{
		Variant:      SingleChannel,
		PedalCommand: saturate16(scaled),
	}
}

// steps maps a clamped command onto the channel's voltage window and
// truncates to DAC steps.
func (ch SpoofChannel) steps(cmd, stepsPerVolt float64) uint16 {
	volts := cmd*(ch.VoltageMax-ch.VoltageMin) + ch.VoltageMin
	lo, hi := ch.Range(stepsPerVolt)
	return saturate16(clamp(volts*stepsPerVolt, float64(lo), float64(hi)))
}

// InBounds reports whether every field of r lies within the calibrated bounds.
// Nothing is in bounds of a calibration that fails Validate.
func (c Calibration) InBounds(r CommandRecord) bool {
	if r.Variant != c.Variant || c.Validate() != nil {
		return false
	}
	if c.Variant == DualChannel {
		hlo, hhi := c.SpoofHigh.Range(c.StepsPerVolt)
		llo, lhi := c.SpoofLow.Range(c.StepsPerVolt)
		return r.SpoofHigh >= hlo && r.SpoofHigh <= hhi &&
			r.SpoofLow >= llo && r.SpoofLow <= lhi
	}
	v := float64(r.PedalCommand)
	return v >= c.MinCommand && v <= c.MaxCommand
}

// saturate16 truncates v toward zero into the uint16 range. NaN maps to 0.
func saturate16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
