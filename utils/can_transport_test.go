//go:build linux || darwin

package utils

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

func pipeBus(t *testing.T) (*SocketCANBus, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	t.Cleanup(func() { _ = peer.Close() })
	bus := newSocketCANBus("pipe", local)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, peer
}

func TestSocketCANBusReadsAfterCanceledRead(t *testing.T) {
	t.Parallel()

	bus, peer := pipeBus(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := bus.ReadFrame(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	want := can.Frame{ID: 0x73, Length: 8, Data: can.Data{0x05, 0xCC, 0x01}}
	sent := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sent <- socketcan.NewTransmitter(peer).TransmitFrame(ctx, want)
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	got, err := bus.ReadFrame(ctx2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, <-sent)
}

func TestSocketCANBusReadAlreadyCanceled(t *testing.T) {
	t.Parallel()

	bus, _ := pipeBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bus.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSocketCANBusClosed(t *testing.T) {
	t.Parallel()

	bus, _ := pipeBus(t)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	_, err := bus.ReadFrame(context.Background())
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.ErrorIs(t, bus.WriteFrame(context.Background(), can.Frame{}), net.ErrClosed)
}
