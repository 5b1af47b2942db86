package loopback

import (
	"context"
	"errors"
	"sync"

	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// Packet kinds carried on the simulated bus.
const (
	msgSetup  = 0x01 // SETUP packet from host
	msgData   = 0x02 // OUT data packet
	msgStatus = 0x03 // Status stage handshake
)

// MaxQueuedPackets bounds the packets a host may queue at once.
const MaxQueuedPackets = 1024

// ErrQueueFull indicates the host queued more than MaxQueuedPackets.
var ErrQueueFull = errors.New("loopback queue full")

// packet is one transaction queued by the host.
type packet struct {
	kind  uint8
	setup hal.SetupPacket
	data  [hal.MaxDataPacketSize]byte
	n     int
}

// Driver implements hal.Driver over an in-memory packet queue. Each Poll
// handles at most one queued packet, the way a bit-banged driver handles
// one transaction per poll.
type Driver struct {
	handler hal.Handler

	// State
	initDone   bool
	connected  bool
	interrupts bool
	receiving  bool
	pending    bool

	queue []packet

	// Outcome of the transfer in progress
	reply  [hal.SetupPacketSize * 8]byte
	replyN int
	status pkg.TransferStatus

	// Counters
	polls    int
	connects int

	mutex sync.Mutex
}

// New creates a disconnected loopback driver.
func New() *Driver {
	return &Driver{}
}

// Init enables the transport interrupt. It fails if called twice.
func (d *Driver) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.initDone {
		return pkg.ErrAlreadyRunning
	}
	d.initDone = true
	d.interrupts = true
	pkg.LogDebug(pkg.ComponentHAL, "loopback initialized")
	return nil
}

// Connect attaches the device to the bus.
func (d *Driver) Connect() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.connected = true
	d.connects++
}

// Disconnect detaches the device and drops anything still queued.
func (d *Driver) Disconnect() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.connected = false
	d.receiving = false
	d.queue = d.queue[:0]
}

// DisableInterrupt turns off the transport interrupt.
func (d *Driver) DisableInterrupt() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.interrupts = false
}

// SetHandler registers the control request handler.
func (d *Driver) SetHandler(h hal.Handler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handler = h
}

// Pending reports, and clears, whether more packets of a multi-packet
// transaction were waiting when the last Poll returned.
func (d *Driver) Pending() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	p := d.pending
	d.pending = false
	return p
}

// Poll handles the packet at the head of the queue.
func (d *Driver) Poll() {
	d.mutex.Lock()
	d.polls++
	if !d.connected || !d.interrupts || d.handler == nil || len(d.queue) == 0 {
		d.mutex.Unlock()
		return
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	d.pending = len(d.queue) > 0 && d.queue[0].kind == msgData
	h := d.handler
	receiving := d.receiving
	d.mutex.Unlock()

	// The handler runs without the lock so it may call back into the driver.
	switch p.kind {
	case msgSetup:
		reply, receive := h.Setup(&p.setup)
		d.mutex.Lock()
		d.receiving = receive
		d.replyN = 0
		if p.setup.IsDeviceToHost() {
			n := copy(d.reply[:], reply)
			if n > int(p.setup.Length) {
				n = int(p.setup.Length)
			}
			d.replyN = n
		}
		d.mutex.Unlock()

	case msgData:
		if !receiving {
			d.setStatus(pkg.TransferStatusStall)
			return
		}
		if h.Write(p.data[:p.n]) {
			d.mutex.Lock()
			d.receiving = false
			d.mutex.Unlock()
		}

	case msgStatus:
		d.mutex.Lock()
		d.receiving = false
		d.mutex.Unlock()
	}
}

func (d *Driver) setStatus(s pkg.TransferStatus) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.status == pkg.TransferStatusSuccess {
		d.status = s
	}
}

// IsConnected returns true if the device is attached to the bus.
func (d *Driver) IsConnected() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connected
}

// InterruptEnabled returns true while the transport interrupt is enabled.
func (d *Driver) InterruptEnabled() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.interrupts
}

// Polls returns the number of Poll calls so far.
func (d *Driver) Polls() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.polls
}

// Connects returns the number of times the device attached to the bus.
func (d *Driver) Connects() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connects
}

// Queued returns the number of packets waiting on the bus.
func (d *Driver) Queued() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.queue)
}

// ready reports whether Poll can make progress on the queue.
func (d *Driver) ready() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connected && d.interrupts && d.handler != nil
}

// enqueue starts a new transfer. The previous transfer outcome is reset.
func (d *Driver) enqueue(pkts []packet) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.connected {
		return pkg.ErrNotConnected
	}
	if len(d.queue)+len(pkts) > MaxQueuedPackets {
		return ErrQueueFull
	}
	d.queue = append(d.queue, pkts...)
	d.status = pkg.TransferStatusSuccess
	d.replyN = 0
	return nil
}

// result returns the outcome of the last transfer.
func (d *Driver) result() ([]byte, pkg.TransferStatus) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]byte, d.replyN)
	copy(out, d.reply[:d.replyN])
	return out, d.status
}
