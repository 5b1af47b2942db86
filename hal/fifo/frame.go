package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// Message types of the FIFO protocol.
const (
	msgSetup = 0x01 // SETUP packet from host
	msgData  = 0x02 // OUT data from host, or IN reply from device
	msgAck   = 0x03 // Status stage from host, or transfer done from device
	msgStall = 0x05 // Transfer failed
)

// Header size for messages.
const headerSize = 3 // type (1) + length (2)

// maxPayload is the largest message payload: a full control reply.
const maxPayload = hal.SetupPacketSize * 8

// FIFO file names inside the bus directory.
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
)

// readSlice bounds a single blocking read so cancellation is noticed.
const readSlice = 100 * time.Millisecond

// ErrFrameTooLong indicates a message header announcing more payload than
// the protocol allows.
var ErrFrameTooLong = errors.New("fifo frame too long")

// pipe is one direction of the bus.
type pipe struct {
	file *os.File
	done <-chan struct{}
}

// createFIFO creates a named pipe in dir, replacing any existing file.
func createFIFO(dir, name string) error {
	path := filepath.Join(dir, name)
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a named pipe read-write and non-blocking, so neither side
// waits for the other to open it.
func openFIFO(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// isFIFO reports whether dir/name is a named pipe.
func isFIFO(dir, name string) bool {
	fi, err := os.Stat(filepath.Join(dir, name))
	return err == nil && fi.Mode()&os.ModeNamedPipe != 0
}

// readFull reads exactly len(buf) bytes, giving up when ctx is cancelled
// or the pipe is closed.
func (p pipe) readFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return pkg.ErrNotConnected
		default:
		}

		p.file.SetReadDeadline(time.Now().Add(readSlice))
		n, err := p.file.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// readFrame reads one message into buf and returns its type and payload.
// The payload aliases buf.
func (p pipe) readFrame(ctx context.Context, buf []byte) (byte, []byte, error) {
	if err := p.readFull(ctx, buf[:headerSize]); err != nil {
		return 0, nil, err
	}
	kind := buf[0]
	n := int(binary.LittleEndian.Uint16(buf[1:3]))
	if n > len(buf)-headerSize {
		return kind, nil, fmt.Errorf("type 0x%02X with %d bytes: %w", kind, n, ErrFrameTooLong)
	}
	payload := buf[headerSize : headerSize+n]
	if err := p.readFull(ctx, payload); err != nil {
		return 0, nil, err
	}
	return kind, payload, nil
}

// writeFrame sends a message with header [type, len_lo, len_hi].
func (p pipe) writeFrame(kind byte, data []byte) error {
	if len(data) > maxPayload {
		return fmt.Errorf("type 0x%02X with %d bytes: %w", kind, len(data), ErrFrameTooLong)
	}
	var buf [headerSize + maxPayload]byte
	buf[0] = kind
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(data)))
	n := headerSize + copy(buf[headerSize:], data)

	written := 0
	for written < n {
		m, err := p.file.Write(buf[written:n])
		written += m
		if err != nil {
			return err
		}
	}
	return nil
}
