package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oscc-brake/brake"
	"oscc-brake/utils"
)

var (
	ErrOperatorOverride = errors.New("operator override")
	ErrModuleFault      = errors.New("module fault reported")
)

type RunnerConfig struct {
	Interface    string
	ProfileName  string
	ScenarioPath string
}

type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	scen    Scenario
	session *brake.Session

	// Report handlers run on the RX goroutine; they only signal the TX loop.
	stopCh chan error
}

func NewRunner(cfg RunnerConfig, cal brake.Calibration, scen Scenario, bus utils.CANBus, log *utils.Logger) (*Runner, error) {
	session, err := brake.NewSession(cal, log)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := session.Open(bus); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		log:     log,
		scen:    scen,
		session: session,
		stopCh:  make(chan error, 1),
	}

	if err := session.SubscribeToBrakeReports(r.onBrakeReport); err != nil {
		_ = session.Close()
		return nil, err
	}
	if err := session.SubscribeToFaultReports(r.onFaultReport); err != nil {
		_ = session.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) Close() {
	if err := r.session.Close(); err != nil {
		r.log.Warn("Close session: %v", err)
	}
}

func (r *Runner) onBrakeReport(rep brake.BrakeReport) {
	r.log.Debug("RX brake report %s", rep)
	if rep.OperatorOverride || rep.HasDTC(brake.DTCOperatorOverride) {
		r.stop(ErrOperatorOverride)
	}
	if rep.HasDTC(brake.DTCInvalidSensorValue) {
		r.log.Warn("Brake module reports invalid sensor value")
	}
}

func (r *Runner) onFaultReport(rep brake.FaultReport) {
	r.log.Warn("RX fault report origin=%s dtcs=0x%02X", rep.OriginName(), rep.DTCs)
	r.stop(fmt.Errorf("%w: %s", ErrModuleFault, rep.OriginName()))
}

func (r *Runner) stop(reason error) {
	select {
	case r.stopCh <- reason:
	default:
	}
}

func (r *Runner) Run(ctx context.Context) error {
	cal := r.session.Calibration()
	cycle := time.Duration(r.scen.Timing.CycleMS) * time.Millisecond

	r.log.Info("Starting TX: profile=%s variant=%s cycle_ms=%d iface=%s scenario=%s duration=%.2fs",
		cal.Name, cal.Variant, r.scen.Timing.CycleMS, r.cfg.Interface,
		r.scen.Meta.Name, r.scen.Timing.DurationS)

	rxCtx, cancelRx := context.WithCancel(ctx)
	defer cancelRx()
	rxDone := make(chan error, 1)
	go func() { rxDone <- r.session.Listen(rxCtx) }()
	rxErr := (<-chan error)(rxDone)

	if err := r.session.Enable(ctx); err != nil {
		return err
	}

	start := time.Now()
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	endAfter := time.Duration(r.scen.Timing.DurationS * float64(time.Second))
	var sent uint64

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping TX")
			r.shutdown(sent)
			return ctx.Err()

		case reason := <-r.stopCh:
			r.log.Warn("Stopping TX: %v", reason)
			r.shutdown(sent)
			return reason

		case err := <-rxErr:
			if ctx.Err() != nil {
				r.shutdown(sent)
				return ctx.Err()
			}
			if err != nil {
				r.log.Error("RX loop failed: %v", err)
				r.shutdown(sent)
				return err
			}
			rxErr = nil

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > endAfter {
				r.shutdown(sent)
				return nil
			}

			t := elapsed.Seconds()
			pedal := EvalPedal(&r.scen, t)

			rec, err := r.session.PublishBrakePosition(ctx, pedal)
			if err != nil {
				r.log.Critical("Transmit failed at t=%.3f: %v", t, err)
				r.shutdown(sent)
				return err
			}

			sent++
			if sent%100 == 0 {
				r.log.Debug("t=%.3f pedal=%.3f %s", t, pedal, rec)
			}
		}
	}
}

// shutdown hands control back to the driver. It uses a fresh context so it
// still goes out after the run context is canceled.
func (r *Runner) shutdown(sent uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := r.session.Disable(ctx); err != nil {
		r.log.Error("Disable failed: %v", err)
	}
	r.log.Info("Completed TX. frames_sent=%d", sent)
}
