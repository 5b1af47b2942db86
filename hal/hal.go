package hal

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softboot/pkg"
)

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// MaxDataPacketSize is the largest data packet a low-speed control
// endpoint carries.
const MaxDataPacketSize = 8

// Request type masks (USB 2.0 Spec Table 9-2).
const (
	RequestTypeDirectionMask = 0x80 // Direction bit mask
	RequestTypeTypeMask      = 0x60 // Type bits mask
	RequestTypeRecipientMask = 0x1F // Recipient bits mask
)

// Request type values.
const (
	RequestDirectionHostToDevice = 0x00 // Host to device
	RequestDirectionDeviceToHost = 0x80 // Device to host
	RequestTypeVendor            = 0x40 // Vendor-specific request
	RequestRecipientDevice       = 0x00 // Device recipient
)

// SetupPacket represents an 8-byte USB SETUP packet.
// This is a fixed-size, zero-allocation structure for SETUP transactions.
type SetupPacket struct {
	RequestType uint8  // bmRequestType: direction, type, recipient
	Request     uint8  // bRequest: specific request code
	Value       uint16 // wValue: request-specific parameter
	Index       uint16 // wIndex: request-specific index
	Length      uint16 // wLength: number of bytes to transfer
}

// ParseSetupPacket parses a setup packet from 8 bytes into out.
// Returns an error if the data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return pkg.ErrSetupPacketTooShort
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo serializes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// IsDeviceToHost returns true if this is a device-to-host transfer.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&RequestTypeDirectionMask == RequestDirectionDeviceToHost
}

// String returns a human-readable representation of the setup packet.
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	return fmt.Sprintf("SETUP[%s] Request=0x%02X Value=0x%04X Index=0x%04X Length=%d",
		dir, s.Request, s.Value, s.Index, s.Length)
}

// VendorSetup initializes out as a vendor request to the device.
// A non-zero length on an IN request asks for that many reply bytes;
// on an OUT request it announces a data phase of that many bytes.
func VendorSetup(out *SetupPacket, in bool, request uint8, value, index, length uint16) {
	out.RequestType = RequestTypeVendor | RequestRecipientDevice
	if in {
		out.RequestType |= RequestDirectionDeviceToHost
	}
	out.Request = request
	out.Value = value
	out.Index = index
	out.Length = length
}

// Handler receives control requests from a Driver. Both methods run
// synchronously inside Driver.Poll and must return quickly: the transport
// has to answer the next packet within the bus turnaround time.
type Handler interface {
	// Setup handles a SETUP packet. It returns the reply for the data IN
	// stage, if any, and whether the following OUT data packets should be
	// delivered to Write.
	Setup(setup *SetupPacket) (reply []byte, receive bool)

	// Write consumes one OUT data packet of at most MaxDataPacketSize
	// bytes. It returns true once the data phase is complete.
	Write(data []byte) (last bool)
}

// Driver defines the transport driver contract the bootloader runs on.
//
// The driver owns bit-level signaling, packet framing and CRC checking. It
// is polled cooperatively: each Poll handles at most one pending bus
// transaction and invokes the registered Handler for control traffic.
type Driver interface {
	// Init prepares the transceiver and its interrupt source.
	Init(ctx context.Context) error

	// Connect attaches the device to the bus.
	Connect()

	// Disconnect detaches the device from the bus.
	Disconnect()

	// Poll services the bus once. It may wait briefly for traffic but
	// never blocks indefinitely.
	Poll()

	// Pending reports whether new bus activity arrived since the last Poll
	// started, and clears the flag.
	Pending() bool

	// DisableInterrupt turns off the transport's interrupt source.
	DisableInterrupt()

	// SetHandler registers the control request handler.
	SetHandler(h Handler)
}
