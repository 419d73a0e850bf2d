package utils

import (
	"context"
	"fmt"

	"go.einride.tech/can"
)

// CANBus is the raw frame transport: one outbound and one inbound direction
// on a single interface.
type CANBus interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// FrameString renders a frame for trace logs, e.g. "0x073 [8] 05 CC 01 00 00 00 00 00".
func FrameString(f can.Frame) string {
	n := int(f.Length)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	return fmt.Sprintf("0x%03X [%d] % X", f.ID, f.Length, f.Data[:n])
}
