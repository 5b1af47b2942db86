package pkg

import "errors"

// Configuration errors.
var (
	// ErrInvalidConfig indicates a target configuration that cannot be built.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPageSize indicates an unsupported flash page size.
	ErrPageSize = errors.New("unsupported page size")

	// ErrMisaligned indicates an address that is not aligned as required.
	ErrMisaligned = errors.New("misaligned address")

	// ErrUnknownTarget indicates a target name with no preset.
	ErrUnknownTarget = errors.New("unknown target")
)

// Image errors.
var (
	// ErrImageTooLarge indicates an application image that does not fit below the bootloader.
	ErrImageTooLarge = errors.New("image too large")

	// ErrImageOutOfRange indicates image data placed outside the application area.
	ErrImageOutOfRange = errors.New("image data out of range")

	// ErrImageEmpty indicates an image with no data records.
	ErrImageEmpty = errors.New("image empty")
)

// Transport errors.
var (
	// ErrStall indicates the device stalled a control transfer.
	ErrStall = errors.New("control transfer stalled")

	// ErrShortReply indicates a control IN transfer returned fewer bytes than expected.
	ErrShortReply = errors.New("short reply")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAlreadyRunning indicates the transport is already initialized.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotConnected indicates the device is not attached to the bus.
	ErrNotConnected = errors.New("not connected")

	// ErrBusIdle indicates the host has nothing left to send.
	ErrBusIdle = errors.New("bus idle")
)

// Bootloader errors.
var (
	// ErrNoApplication indicates flash holds no valid application.
	ErrNoApplication = errors.New("no valid application")

	// ErrExited indicates the bootloader has already jumped to the application.
	ErrExited = errors.New("bootloader exited")
)

// TransferStatus is the outcome of a control transfer as the host sees it
// after the status stage.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess TransferStatus = iota // Status stage acknowledged
	TransferStatusStall                         // Device stalled the request
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusStall:
		return "stall"
	default:
		return "unknown"
	}
}

// Error returns nil for a successful transfer and the matching sentinel
// otherwise.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	default:
		return ErrInvalidRequest
	}
}
