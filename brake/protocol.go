package brake

import (
	"errors"
	"fmt"

	"go.einride.tech/can"
)

// CAN identifiers used by the brake module.
const (
	EnableCANID  uint32 = 0x70
	DisableCANID uint32 = 0x71
	CommandCANID uint32 = 0x72
	ReportCANID  uint32 = 0x73
	FaultCANID   uint32 = 0xAF
)

// Every brake frame is a classic 8 byte frame.
const FrameDLC = 8

// Report marker carried in bytes 0-1 of every module frame.
const (
	MagicByte0 byte = 0x05
	MagicByte1 byte = 0xCC
)

// Brake diagnostic trouble code bits.
const (
	DTCInvalidSensorValue uint8 = 0
	DTCOperatorOverride   uint8 = 1
)

// Fault origins carried by fault reports.
const (
	FaultOriginBrake    uint32 = 0
	FaultOriginSteering uint32 = 1
	FaultOriginThrottle uint32 = 2
)

var (
	ErrShortFrame = errors.New("brake: frame shorter than report layout")
	ErrNoMarker   = errors.New("brake: report marker missing")
)

// BrakeReport is the status the module publishes on ReportCANID.
type BrakeReport struct {
	Enabled          bool
	OperatorOverride bool
	DTCs             uint8
}

// HasDTC reports whether the given DTC bit is set.
func (r BrakeReport) HasDTC(bit uint8) bool {
	return bit < 8 && r.DTCs&(1<<bit) != 0
}

func (r BrakeReport) String() string {
	return fmt.Sprintf("enabled=%v override=%v dtcs=0x%02X", r.Enabled, r.OperatorOverride, r.DTCs)
}

// FaultReport is broadcast on FaultCANID by any module that has disabled itself.
type FaultReport struct {
	Origin uint32
	DTCs   uint8
}

func (r FaultReport) OriginName() string {
	switch r.Origin {
	case FaultOriginBrake:
		return "brake"
	case FaultOriginSteering:
		return "steering"
	case FaultOriginThrottle:
		return "throttle"
	default:
		return fmt.Sprintf("unknown(%d)", r.Origin)
	}
}

// HasMarker reports whether data starts with the two byte report marker.
func HasMarker(data []byte) bool {
	return len(data) >= 2 && data[0] == MagicByte0 && data[1] == MagicByte1
}

// loadPayload copies a full report payload into a can.Data so fields can be
// read by bit position. Short or unmarked payloads are rejected.
func loadPayload(data []byte) (can.Data, error) {
	var d can.Data
	if len(data) < FrameDLC {
		if len(data) >= 2 && !HasMarker(data) {
			return d, ErrNoMarker
		}
		return d, fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(data), FrameDLC)
	}
	if !HasMarker(data) {
		return d, ErrNoMarker
	}
	copy(d[:], data[:FrameDLC])
	return d, nil
}

// ParseBrakeReport decodes a brake report payload field by field.
func ParseBrakeReport(data []byte) (BrakeReport, error) {
	d, err := loadPayload(data)
	if err != nil {
		return BrakeReport{}, err
	}
	return BrakeReport{
		Enabled:          d.UnsignedBitsLittleEndian(16, 8) != 0,
		OperatorOverride: d.UnsignedBitsLittleEndian(24, 8) != 0,
		DTCs:             uint8(d.UnsignedBitsLittleEndian(32, 8)),
	}, nil
}

// ParseFaultReport decodes a fault report payload field by field.
func ParseFaultReport(data []byte) (FaultReport, error) {
	d, err := loadPayload(data)
	if err != nil {
		return FaultReport{}, err
	}
	return FaultReport{
		Origin: uint32(d.UnsignedBitsLittleEndian(16, 32)),
		DTCs:   uint8(d.UnsignedBitsLittleEndian(48, 8)),
	}, nil
}

func markedFrame(id uint32) can.Frame {
	f := can.Frame{ID: id, Length: FrameDLC}
	f.Data[0] = MagicByte0
	f.Data[1] = MagicByte1
	return f
}

// EnableFrame requests the module to take control of the brakes.
func EnableFrame() can.Frame { return markedFrame(EnableCANID) }

// DisableFrame returns control to the driver.
func DisableFrame() can.Frame { return markedFrame(DisableCANID) }

// Frame encodes r the way the module firmware publishes it.
func (r BrakeReport) Frame() can.Frame {
	f := markedFrame(ReportCANID)
	f.Data.SetUnsignedBitsLittleEndian(16, 8, boolBit(r.Enabled))
	f.Data.SetUnsignedBitsLittleEndian(24, 8, boolBit(r.OperatorOverride))
	f.Data.SetUnsignedBitsLittleEndian(32, 8, uint64(r.DTCs))
	return f
}

// Frame encodes r the way the module firmware publishes it.
func (r FaultReport) Frame() can.Frame {
	f := markedFrame(FaultCANID)
	f.Data.SetUnsignedBitsLittleEndian(16, 32, uint64(r.Origin))
	f.Data.SetUnsignedBitsLittleEndian(48, 8, uint64(r.DTCs))
	return f
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
