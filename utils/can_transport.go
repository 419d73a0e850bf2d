//go:build linux || darwin

package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCANBus implements CANBus on a SocketCAN interface.
type SocketCANBus struct {
	iface string
	conn  net.Conn
	tx    *socketcan.Transmitter
	rx    *socketcan.Receiver
}

func NewSocketCANBus(ctx context.Context, iface string) (*SocketCANBus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return newSocketCANBus(iface, conn), nil
}

func newSocketCANBus(iface string, conn net.Conn) *SocketCANBus {
	return &SocketCANBus{
		iface: iface,
		conn:  conn,
		tx:    socketcan.NewTransmitter(conn),
		rx:    socketcan.NewReceiver(conn),
	}
}

func (b *SocketCANBus) Interface() string { return b.iface }

func (b *SocketCANBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	if b.conn == nil {
		return net.ErrClosed
	}
	return b.tx.TransmitFrame(ctx, frame)
}

// ReadFrame blocks until a data frame arrives or ctx is done. Cancellation
// expires the socket read deadline so the pending read returns; the bus stays
// usable for later reads.
func (b *SocketCANBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	if b.conn == nil {
		return can.Frame{}, net.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return can.Frame{}, err
	}
	_ = b.conn.SetReadDeadline(time.Time{})
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = b.conn.SetReadDeadline(time.Now())
		close(fired)
	})
	defer func() {
		// Let a running deadline callback finish before the next read clears it.
		if !stop() {
			<-fired
		}
	}()

	for b.rx.Receive() {
		if b.rx.HasErrorFrame() {
			continue
		}
		return b.rx.Frame(), nil
	}
	if err := ctx.Err(); err != nil {
		// The scanner behind the receiver stops for good after any error.
		// SocketCAN reads whole frames, so nothing buffered is lost.
		b.rx = socketcan.NewReceiver(b.conn)
		return can.Frame{}, err
	}
	if err := b.rx.Err(); err != nil {
		return can.Frame{}, fmt.Errorf("socketcan receive: %w", err)
	}
	return can.Frame{}, io.EOF
}

func (b *SocketCANBus) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
