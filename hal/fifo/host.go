package fifo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// DefaultTimeout bounds one control transfer, including the time the
// device spends frozen in a flash operation.
const DefaultTimeout = 5 * time.Second

// dialInterval is how often Dial looks for the device's FIFOs.
const dialInterval = 10 * time.Millisecond

// Host issues control transfers to a Driver serving the same bus
// directory, possibly in another process.
type Host struct {
	tx pipe // host_to_device
	rx pipe // device_to_host

	closeCh chan struct{}
	log     *slog.Logger

	// Timeout bounds each transfer.
	Timeout time.Duration
}

// Dial waits for a device to create its FIFOs in dir and opens them.
func Dial(ctx context.Context, dir string) (*Host, error) {
	ticker := time.NewTicker(dialInterval)
	defer ticker.Stop()
	for !isFIFO(dir, fifoHostToDevice) || !isFIFO(dir, fifoDeviceToHost) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", dir, ctx.Err())
		case <-ticker.C:
		}
	}

	tx, err := openFIFO(dir, fifoHostToDevice)
	if err != nil {
		return nil, err
	}
	rx, err := openFIFO(dir, fifoDeviceToHost)
	if err != nil {
		tx.Close()
		return nil, err
	}

	closeCh := make(chan struct{})
	h := &Host{
		tx:      pipe{file: tx, done: closeCh},
		rx:      pipe{file: rx, done: closeCh},
		closeCh: closeCh,
		log:     pkg.Logger(pkg.ComponentHAL).With("dir", dir),
		Timeout: DefaultTimeout,
	}
	h.drain()
	h.log.Debug("fifo bus dialed")
	return h, nil
}

// Close releases the FIFOs. The device keeps serving.
func (h *Host) Close() error {
	close(h.closeCh)
	return errors.Join(h.tx.file.Close(), h.rx.file.Close())
}

// ControlIn performs a vendor IN request and returns the reply.
func (h *Host) ControlIn(request uint8, value, index, length uint16) ([]byte, error) {
	var setup hal.SetupPacket
	hal.VendorSetup(&setup, true, request, value, index, length)
	reply, err := h.transfer(&setup, nil)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// ControlOut performs a vendor OUT request with an optional data phase
// split into frames of hal.MaxDataPacketSize bytes.
func (h *Host) ControlOut(request uint8, value, index uint16, data []byte) error {
	var setup hal.SetupPacket
	hal.VendorSetup(&setup, false, request, value, index, uint16(len(data)))
	_, err := h.transfer(&setup, data)
	return err
}

func (h *Host) transfer(setup *hal.SetupPacket, data []byte) ([]byte, error) {
	h.drain()

	var buf [hal.SetupPacketSize]byte
	setup.MarshalTo(buf[:])
	if err := h.tx.writeFrame(msgSetup, buf[:]); err != nil {
		return nil, fmt.Errorf("send setup: %w", err)
	}
	for len(data) > 0 {
		n := min(len(data), hal.MaxDataPacketSize)
		if err := h.tx.writeFrame(msgData, data[:n]); err != nil {
			return nil, fmt.Errorf("send data: %w", err)
		}
		data = data[n:]
	}
	if err := h.tx.writeFrame(msgAck, nil); err != nil {
		return nil, fmt.Errorf("send status: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()

	var in [headerSize + maxPayload]byte
	kind, payload, err := h.rx.readFrame(ctx, in[:])
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("no answer after %v: %w", h.Timeout, pkg.ErrBusIdle)
	case err != nil:
		return nil, err
	}

	h.log.Debug("transfer", "request", setup.Request, "answer", kind, "len", len(payload))
	switch kind {
	case msgStall:
		return nil, pkg.ErrStall
	case msgData:
		return append([]byte(nil), payload...), nil
	case msgAck:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected message type 0x%02X: %w", kind, pkg.ErrInvalidRequest)
}

// drain discards answers left over from an earlier session.
func (h *Host) drain() {
	var buf [64]byte
	for {
		h.rx.file.SetReadDeadline(time.Now())
		n, err := h.rx.file.Read(buf[:])
		if n == 0 || err != nil {
			if err != nil && !os.IsTimeout(err) {
				h.log.Debug("drain", "error", err)
			}
			return
		}
	}
}
