// Package fifo implements a transport driver for the bootloader over a
// pair of named pipes, so the device and the host can run as separate
// processes on one machine.
//
// The device side creates the FIFOs in a bus directory:
//
//	<dir>/host_to_device  - SETUP, OUT data and status frames from the host
//	<dir>/device_to_host  - the answer to each transfer
//
// Every message carries a 3-byte header [type, len_lo, len_hi] followed by
// the payload. A transfer is a SETUP frame, its OUT data frames of at most
// eight bytes each, and a status frame. The device answers the status
// frame with the IN reply, a plain acknowledgement, or a stall.
//
// The [Driver] satisfies [hal.Driver] and queues frames from a receiver
// goroutine, so the scheduler still sees one transaction per Poll and the
// same pending-data signal as on hardware. [Dial] opens the host side.
package fifo
