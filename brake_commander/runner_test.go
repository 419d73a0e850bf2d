package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"oscc-brake/brake"
	"oscc-brake/utils"
)

type memBus struct {
	mu        sync.Mutex
	written   []can.Frame
	inbound   chan can.Frame
	closeOnce sync.Once
}

func newMemBus() *memBus {
	return &memBus{inbound: make(chan can.Frame, 8)}
}

func (b *memBus) WriteFrame(_ context.Context, f can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written = append(b.written, f)
	return nil
}

func (b *memBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-b.inbound:
		if !ok {
			return can.Frame{}, io.EOF
		}
		return f, nil
	}
}

func (b *memBus) Close() error {
	b.closeOnce.Do(func() { close(b.inbound) })
	return nil
}

func (b *memBus) ids() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint32, 0, len(b.written))
	for _, f := range b.written {
		out = append(out, f.ID)
	}
	return out
}

func builtin(t *testing.T, name string) brake.Calibration {
	t.Helper()
	cal, err := brake.BuiltinProfiles().Lookup(name)
	require.NoError(t, err)
	return cal
}

func shortScenario(duration float64) Scenario {
	return Scenario{
		Meta:     ScenarioMeta{Name: "test"},
		Timing:   ScenarioTiming{CycleMS: 5, DurationS: duration},
		Segments: []ScenarioSegment{{T0: 0, T1: -1, Pedal: 0.3}},
	}
}

func TestRunnerSendsEnableCommandsDisable(t *testing.T) {
	t.Parallel()

	bus := newMemBus()
	r, err := NewRunner(RunnerConfig{Interface: "mem"}, builtin(t, brake.ProfileKiaSoulPetrol), shortScenario(0.05), bus, utils.NopLogger())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Run(context.Background()))

	ids := bus.ids()
	require.GreaterOrEqual(t, len(ids), 3)
	assert.Equal(t, brake.EnableCANID, ids[0])
	assert.Equal(t, brake.DisableCANID, ids[len(ids)-1])
	for _, id := range ids[1 : len(ids)-1] {
		assert.Equal(t, brake.CommandCANID, id)
	}
}

func TestRunnerStopsOnOperatorOverride(t *testing.T) {
	t.Parallel()

	bus := newMemBus()
	r, err := NewRunner(RunnerConfig{Interface: "mem"}, builtin(t, brake.ProfileKiaNiro), shortScenario(30), bus, utils.NopLogger())
	require.NoError(t, err)
	defer r.Close()

	bus.inbound <- brake.BrakeReport{Enabled: false, OperatorOverride: true}.Frame()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrOperatorOverride)
	case <-time.After(2 * time.Second):
		t.Fatal("runner ignored operator override")
	}
	ids := bus.ids()
	assert.Equal(t, brake.DisableCANID, ids[len(ids)-1])
}

func TestRunnerStopsOnFaultReport(t *testing.T) {
	t.Parallel()

	bus := newMemBus()
	r, err := NewRunner(RunnerConfig{Interface: "mem"}, builtin(t, brake.ProfileKiaSoulEV), shortScenario(30), bus, utils.NopLogger())
	require.NoError(t, err)
	defer r.Close()

	bus.inbound <- brake.FaultReport{Origin: brake.FaultOriginSteering}.Frame()

	err = r.Run(context.Background())
	assert.True(t, errors.Is(err, ErrModuleFault), "got %v", err)
}

func TestRunnerHonoursCancel(t *testing.T) {
	t.Parallel()

	bus := newMemBus()
	r, err := NewRunner(RunnerConfig{Interface: "mem"}, builtin(t, brake.ProfileKiaSoulPetrol), shortScenario(30), bus, utils.NopLogger())
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	ids := bus.ids()
	assert.Equal(t, brake.DisableCANID, ids[len(ids)-1])
}

func TestNewRunnerRejectsInvalidCalibration(t *testing.T) {
	t.Parallel()

	bad := brake.Calibration{Name: "bad", Variant: brake.DualChannel, MaxCommand: 1}
	_, err := NewRunner(RunnerConfig{}, bad, shortScenario(1), newMemBus(), utils.NopLogger())
	assert.ErrorIs(t, err, brake.ErrInvalidCalibration)
}
