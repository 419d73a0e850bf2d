package brake

import (
	"errors"
	"sync/atomic"

	"go.einride.tech/can"
)

var (
	ErrSessionNotOpen = errors.New("brake: bus session not open")
	ErrNilHandler     = errors.New("brake: nil report handler")
)

// ReportHandler receives decoded brake reports. It runs on the goroutine
// that delivers the frame and must return promptly.
type ReportHandler func(BrakeReport)

// FaultHandler receives decoded fault reports, under the same rules as
// ReportHandler.
type FaultHandler func(FaultReport)

// Dispatcher routes inbound report frames to at most one handler per report
// category. Subscribing again replaces the previous handler.
//
// Handler slots are swapped atomically, so a frame delivered concurrently
// with a subscribe sees either the old or the new handler.
type Dispatcher struct {
	attached atomic.Bool
	brake    atomic.Pointer[ReportHandler]
	fault    atomic.Pointer[FaultHandler]

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Attach marks the bus session as live; subscriptions are accepted from now on.
// A new session starts with no handlers.
func (d *Dispatcher) Attach() {
	d.brake.Store(nil)
	d.fault.Store(nil)
	d.attached.Store(true)
}

// Detach ends the session and releases every subscription.
func (d *Dispatcher) Detach() {
	d.attached.Store(false)
	d.brake.Store(nil)
	d.fault.Store(nil)
}

func (d *Dispatcher) Attached() bool {
	return d.attached.Load()
}

func (d *Dispatcher) SubscribeBrakeReports(h ReportHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	if !d.attached.Load() {
		return ErrSessionNotOpen
	}
	hp := &h
	d.brake.Store(hp)
	// A Detach may have landed between the check and the store.
	if !d.attached.Load() {
		d.brake.CompareAndSwap(hp, nil)
		return ErrSessionNotOpen
	}
	return nil
}

func (d *Dispatcher) SubscribeFaultReports(h FaultHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	if !d.attached.Load() {
		return ErrSessionNotOpen
	}
	hp := &h
	d.fault.Store(hp)
	// A Detach may have landed between the check and the store.
	if !d.attached.Load() {
		d.fault.CompareAndSwap(hp, nil)
		return ErrSessionNotOpen
	}
	return nil
}

// OnFrame handles one inbound frame and reports whether a handler ran.
// Unrelated, unmarked or truncated frames are dropped without error.
func (d *Dispatcher) OnFrame(frame can.Frame) bool {
	if frame.IsRemote || frame.IsExtended || int(frame.Length) > len(frame.Data) {
		return false
	}
	payload := frame.Data[:frame.Length]

	switch frame.ID {
	case ReportCANID:
		return d.OnBrakeReportPayload(payload)
	case FaultCANID:
		return d.OnFaultReportPayload(payload)
	default:
		return false
	}
}

// OnBrakeReportPayload handles the payload of a frame the transport has
// already filtered to ReportCANID.
func (d *Dispatcher) OnBrakeReportPayload(payload []byte) bool {
	h := d.brake.Load()
	if h == nil {
		return false
	}
	report, err := ParseBrakeReport(payload)
	if err != nil {
		d.dropped.Add(1)
		return false
	}
	(*h)(report)
	d.delivered.Add(1)
	return true
}

// OnFaultReportPayload handles the payload of a frame the transport has
// already filtered to FaultCANID.
func (d *Dispatcher) OnFaultReportPayload(payload []byte) bool {
	h := d.fault.Load()
	if h == nil {
		return false
	}
	report, err := ParseFaultReport(payload)
	if err != nil {
		d.dropped.Add(1)
		return false
	}
	(*h)(report)
	d.delivered.Add(1)
	return true
}

// Stats returns how many report frames reached a handler and how many
// matched a report ID but were malformed.
func (d *Dispatcher) Stats() (delivered, dropped uint64) {
	return d.delivered.Load(), d.dropped.Load()
}
