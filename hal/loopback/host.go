package loopback

import (
	"fmt"

	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// Host issues control transfers to a Driver. The device side is single
// threaded, so the host drives it: after queueing a transfer it calls step
// until the bus drains. step returns true once the device has left the bus.
type Host struct {
	driver *Driver
	step   func() bool

	// MaxSteps bounds the device steps spent on one transfer.
	MaxSteps int
}

// NewHost creates a host for d that advances the device with step.
func NewHost(d *Driver, step func() bool) *Host {
	return &Host{driver: d, step: step, MaxSteps: 4 * MaxQueuedPackets}
}

// ControlIn performs a vendor IN request and returns the reply.
func (h *Host) ControlIn(request uint8, value, index, length uint16) ([]byte, error) {
	var p packet
	p.kind = msgSetup
	hal.VendorSetup(&p.setup, true, request, value, index, length)
	if err := h.transfer([]packet{p, {kind: msgStatus}}); err != nil {
		return nil, err
	}
	reply, status := h.driver.result()
	if err := status.Error(); err != nil {
		return nil, err
	}
	return reply, nil
}

// ControlOut performs a vendor OUT request with an optional data phase
// split into packets of hal.MaxDataPacketSize bytes.
func (h *Host) ControlOut(request uint8, value, index uint16, data []byte) error {
	pkts := make([]packet, 0, 2+(len(data)+hal.MaxDataPacketSize-1)/hal.MaxDataPacketSize)

	var p packet
	p.kind = msgSetup
	hal.VendorSetup(&p.setup, false, request, value, index, uint16(len(data)))
	pkts = append(pkts, p)

	for len(data) > 0 {
		var d packet
		d.kind = msgData
		d.n = copy(d.data[:], data)
		data = data[d.n:]
		pkts = append(pkts, d)
	}
	pkts = append(pkts, packet{kind: msgStatus})

	if err := h.transfer(pkts); err != nil {
		return err
	}
	_, status := h.driver.result()
	return status.Error()
}

func (h *Host) transfer(pkts []packet) error {
	if err := h.driver.enqueue(pkts); err != nil {
		return err
	}
	for steps := 0; h.driver.Queued() > 0; steps++ {
		if !h.driver.ready() {
			return pkg.ErrNotConnected
		}
		if steps >= h.MaxSteps {
			return fmt.Errorf("%d packets left after %d steps: %w",
				h.driver.Queued(), steps, pkg.ErrBusIdle)
		}
		if h.step() {
			if h.driver.Queued() > 0 {
				return pkg.ErrNotConnected
			}
			return nil
		}
	}
	return nil
}

// Idle advances the device n steps with nothing on the bus. It returns
// true if the device left the bus meanwhile.
func (h *Host) Idle(n int) bool {
	for i := 0; i < n; i++ {
		if h.step() {
			return true
		}
	}
	return false
}
