package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// MaxQueuedFrames bounds the messages buffered ahead of the scheduler.
const MaxQueuedFrames = 1024

// PollWait is how long Poll waits for a message when none is queued. It
// stands in for the wait on the bus interrupt.
const PollWait = time.Millisecond

// frame is one message received from the host.
type frame struct {
	kind byte
	data []byte
}

// Driver implements hal.Driver over a pair of named pipes in a bus
// directory, so the bootloader and a host can run in separate processes.
// Each Poll handles at most one message.
type Driver struct {
	dir     string
	handler hal.Handler

	rx pipe // host_to_device
	tx pipe // device_to_host

	// State
	initDone   bool
	connected  bool
	interrupts bool
	receiving  bool
	pending    bool
	open       bool
	in         bool
	stalled    bool

	queue []frame

	// Reply of the IN transfer in progress
	reply  [maxPayload]byte
	replyN int

	notify    chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	mutex     sync.Mutex
}

// New creates a disconnected driver for the bus directory dir.
func New(dir string) *Driver {
	return &Driver{
		dir:     dir,
		notify:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Init creates the bus FIFOs and starts receiving. It fails if called twice.
func (d *Driver) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.initDone {
		return pkg.ErrAlreadyRunning
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create bus dir: %w", err)
	}
	if err := createFIFO(d.dir, fifoHostToDevice); err != nil {
		return err
	}
	if err := createFIFO(d.dir, fifoDeviceToHost); err != nil {
		return err
	}

	rx, err := openFIFO(d.dir, fifoHostToDevice)
	if err != nil {
		return err
	}
	tx, err := openFIFO(d.dir, fifoDeviceToHost)
	if err != nil {
		rx.Close()
		return err
	}
	d.rx = pipe{file: rx, done: d.closeCh}
	d.tx = pipe{file: tx, done: d.closeCh}

	d.initDone = true
	d.interrupts = true
	d.wg.Add(1)
	go d.receive()

	pkg.LogInfo(pkg.ComponentHAL, "fifo bus initialized", "dir", d.dir)
	return nil
}

// receive queues messages from the host until the driver is closed.
func (d *Driver) receive() {
	defer d.wg.Done()
	var buf [headerSize + maxPayload]byte
	for {
		kind, data, err := d.rx.readFrame(context.Background(), buf[:])
		if err != nil {
			if errors.Is(err, pkg.ErrNotConnected) || errors.Is(err, os.ErrClosed) {
				return
			}
			pkg.LogWarn(pkg.ComponentHAL, "bad frame from host", "error", err)
			continue
		}

		d.mutex.Lock()
		if !d.connected {
			d.mutex.Unlock()
			continue
		}
		if len(d.queue) < MaxQueuedFrames {
			d.queue = append(d.queue, frame{kind: kind, data: append([]byte(nil), data...)})
		} else {
			pkg.LogWarn(pkg.ComponentHAL, "frame dropped", "type", kind)
		}
		d.mutex.Unlock()

		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
}

// Connect attaches the device to the bus.
func (d *Driver) Connect() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.connected = true
}

// Disconnect detaches the device and drops anything still queued. A
// transfer whose SETUP was already handled is answered first.
func (d *Driver) Disconnect() {
	d.mutex.Lock()
	open := d.open && d.initDone
	d.connected = false
	d.queue = d.queue[:0]
	d.mutex.Unlock()

	if open {
		d.complete()
	}
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

// Pending reports, and clears, whether more data of the current transfer
// was already queued when the last Poll returned.
func (d *Driver) Pending() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	p := d.pending
	d.pending = false
	return p
}

// Poll handles the message at the head of the queue, waiting up to
// PollWait for one to arrive.
func (d *Driver) Poll() {
	f, h, receiving, ok := d.next()
	if !ok {
		return
	}

	switch f.kind {
	case msgSetup:
		var setup hal.SetupPacket
		if err := hal.ParseSetupPacket(f.data, &setup); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "bad setup frame", "error", err)
			d.mutex.Lock()
			d.stalled = true
			d.mutex.Unlock()
			return
		}
		reply, receive := h.Setup(&setup)
		d.mutex.Lock()
		d.receiving = receive
		d.open = true
		d.stalled = false
		d.in = setup.IsDeviceToHost()
		d.replyN = 0
		if d.in {
			n := copy(d.reply[:], reply)
			if n > int(setup.Length) {
				n = int(setup.Length)
			}
			d.replyN = n
		}
		d.mutex.Unlock()

	case msgData:
		if !receiving {
			d.mutex.Lock()
			d.stalled = true
			d.mutex.Unlock()
			return
		}
		if h.Write(f.data) {
			d.mutex.Lock()
			d.receiving = false
			d.mutex.Unlock()
		}

	case msgAck:
		d.mutex.Lock()
		open := d.open
		d.mutex.Unlock()
		if open {
			d.complete()
		}

	default:
		pkg.LogWarn(pkg.ComponentHAL, "unknown message type", "type", f.kind)
	}
}

// next pops the head of the queue once the driver can handle it.
func (d *Driver) next() (frame, hal.Handler, bool, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.ready() {
		return frame{}, nil, false, false
	}
	if len(d.queue) == 0 {
		d.mutex.Unlock()
		d.wait()
		d.mutex.Lock()
		if !d.ready() || len(d.queue) == 0 {
			return frame{}, nil, false, false
		}
	}

	f := d.queue[0]
	d.queue = d.queue[1:]
	d.pending = len(d.queue) > 0 && d.queue[0].kind == msgData
	return f, d.handler, d.receiving, true
}

func (d *Driver) wait() {
	t := time.NewTimer(PollWait)
	defer t.Stop()
	select {
	case <-d.notify:
	case <-t.C:
	case <-d.closeCh:
	}
}

// complete answers the status stage of the current transfer.
func (d *Driver) complete() {
	d.mutex.Lock()
	kind := byte(msgAck)
	var data []byte
	switch {
	case d.stalled:
		kind = msgStall
	case d.in:
		kind = msgData
		data = append(data, d.reply[:d.replyN]...)
	}
	d.receiving = false
	d.open = false
	d.stalled = false
	d.in = false
	tx := d.tx
	d.mutex.Unlock()

	if err := tx.writeFrame(kind, data); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "reply to host failed", "error", err)
	}
}

// ready reports whether Poll can make progress on the queue.
func (d *Driver) ready() bool {
	return d.initDone && d.connected && d.interrupts && d.handler != nil
}

// Close stops receiving, closes the FIFOs and removes them.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.closeCh)
	})
	d.wg.Wait()

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.initDone {
		return nil
	}
	d.initDone = false
	d.rx.file.Close()
	d.tx.file.Close()
	os.Remove(filepath.Join(d.dir, fifoHostToDevice))
	os.Remove(filepath.Join(d.dir, fifoDeviceToHost))
	pkg.LogInfo(pkg.ComponentHAL, "fifo bus closed", "dir", d.dir)
	return nil
}

// Dir returns the bus directory.
func (d *Driver) Dir() string {
	return d.dir
}
