package brake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.einride.tech/can"

	"oscc-brake/internal/syncutil"
	"oscc-brake/utils"
)

var ErrSessionAlreadyOpen = errors.New("brake: bus session already open")

// Session binds one vehicle calibration and one report dispatcher to a CAN
// bus. Commands and subscriptions fail with ErrSessionNotOpen until Open.
type Session struct {
	mu       syncutil.Mutex
	cal      Calibration
	bus      utils.CANBus
	dispatch *Dispatcher
	log      *utils.Logger
	sent     uint64
}

func NewSession(cal Calibration, log *utils.Logger) (*Session, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = utils.NopLogger()
	}
	return &Session{
		cal:      cal,
		dispatch: NewDispatcher(),
		log:      log,
	}, nil
}

func (s *Session) Calibration() Calibration { return s.cal }

func (s *Session) Dispatcher() *Dispatcher { return s.dispatch }

func (s *Session) Open(bus utils.CANBus) error {
	if bus == nil {
		return fmt.Errorf("open session: nil bus")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus != nil {
		return ErrSessionAlreadyOpen
	}
	s.bus = bus
	s.sent = 0
	s.dispatch.Attach()
	s.log.Info("Brake session open: profile=%s variant=%s", s.cal.Name, s.cal.Variant)
	return nil
}

// Close releases subscriptions and closes the bus. Closing a closed session
// is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil {
		return nil
	}
	s.dispatch.Detach()
	err := s.bus.Close()
	s.bus = nil
	delivered, dropped := s.dispatch.Stats()
	s.log.Info("Brake session closed: frames_sent=%d reports_delivered=%d reports_dropped=%d",
		s.sent, delivered, dropped)
	return err
}

func (s *Session) SubscribeToBrakeReports(h ReportHandler) error {
	return s.dispatch.SubscribeBrakeReports(h)
}

func (s *Session) SubscribeToFaultReports(h FaultHandler) error {
	return s.dispatch.SubscribeFaultReports(h)
}

// PublishBrakePosition encodes pedal with the session calibration and
// transmits the command. Out-of-range pedal values are clamped, never
// rejected.
func (s *Session) PublishBrakePosition(ctx context.Context, pedal float64) (CommandRecord, error) {
	rec := s.cal.Encode(pedal)
	if err := s.send(ctx, rec.Frame()); err != nil {
		return rec, fmt.Errorf("publish brake position: %w", err)
	}
	s.log.Trace("TX brake pedal=%.4f %s", pedal, rec)
	return rec, nil
}

func (s *Session) Enable(ctx context.Context) error {
	if err := s.send(ctx, EnableFrame()); err != nil {
		return fmt.Errorf("enable brakes: %w", err)
	}
	s.log.Info("Brake enable sent")
	return nil
}

func (s *Session) Disable(ctx context.Context) error {
	if err := s.send(ctx, DisableFrame()); err != nil {
		return fmt.Errorf("disable brakes: %w", err)
	}
	s.log.Info("Brake disable sent")
	return nil
}

func (s *Session) send(ctx context.Context, frame can.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil {
		return ErrSessionNotOpen
	}
	if err := s.bus.WriteFrame(ctx, frame); err != nil {
		s.log.Error("TX failed %s: %v", utils.FrameString(frame), err)
		return err
	}
	s.sent++
	return nil
}

// Listen reads frames until ctx is done or the bus closes, handing each one
// to the dispatcher on this goroutine.
func (s *Session) Listen(ctx context.Context) error {
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus == nil {
		return ErrSessionNotOpen
	}

	s.log.Debug("RX loop started")
	defer s.log.Debug("RX loop stopped")

	for {
		frame, err := bus.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("RX error: %v", err)
			return fmt.Errorf("listen: %w", err)
		}
		if !s.dispatch.OnFrame(frame) && s.log.Enabled(utils.TRACE) {
			s.log.Trace("RX ignored %s", utils.FrameString(frame))
		}
	}
}
