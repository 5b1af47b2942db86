package boot

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ardnew/softboot/pkg"
)

// Version of the bootloader protocol implemented by this package.
const (
	VersionMajor = 1
	VersionMinor = 99
)

// USB identity the bootloader enumerates with, shared with other
// bootloaders speaking the same protocol.
const (
	USBVendorID  = 0x16D0
	USBProductID = 0x0753
)

// DefaultWriteDelayMs is the delay a host should leave between erase or
// write requests. A page commit freezes the CPU for about 4.5 ms.
const DefaultWriteDelayMs = 5

// MaxPageSize is the largest flash page the accumulator supports.
const MaxPageSize = 256

// IdleTicksPerMs converts auto-exit thresholds in milliseconds into idle
// counter ticks.
const IdleTicksPerMs = 10

// OscalRestoreMode selects how the oscillator calibration is put back
// before the application starts.
type OscalRestoreMode uint8

// Calibration restore strategies.
const (
	// OscalRestoreNone leaves the calibration register as the bootloader set it.
	OscalRestoreNone OscalRestoreMode = iota

	// OscalRestoreDefault restores the value captured at bootloader entry.
	OscalRestoreDefault

	// OscalRestoreStored writes the live calibration into flash next to the
	// tinyvector while programming, and restores it from there on exit.
	OscalRestoreStored
)

// String returns the mode name used in target profiles.
func (m OscalRestoreMode) String() string {
	switch m {
	case OscalRestoreNone:
		return "none"
	case OscalRestoreDefault:
		return "default"
	case OscalRestoreStored:
		return "stored"
	default:
		return fmt.Sprintf("oscal(%d)", uint8(m))
	}
}

// ParseOscalRestoreMode parses a mode name as produced by String.
func ParseOscalRestoreMode(s string) (OscalRestoreMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return OscalRestoreNone, nil
	case "default":
		return OscalRestoreDefault, nil
	case "stored":
		return OscalRestoreStored, nil
	}
	return 0, fmt.Errorf("oscal restore mode %q: %w", s, pkg.ErrInvalidConfig)
}

// Config is the resolved build-time configuration of a bootloader target.
type Config struct {
	// FlashSize is the total program memory size in bytes.
	FlashSize uint32

	// PageSize is the flash page size in bytes.
	PageSize uint16

	// BootloaderAddress is the first byte of bootloader code. Everything
	// below it is application space.
	BootloaderAddress uint16

	// ResetVectorOffset is the index of the reset vector in the
	// application's interrupt vector table.
	ResetVectorOffset uint16

	// TinyvectorOffset is the distance in bytes below BootloaderAddress of
	// the slot holding the relocated application reset vector.
	TinyvectorOffset uint16

	// OscalOffset is the distance in bytes below BootloaderAddress of the
	// slot holding the stored oscillator calibration. Zero disables it.
	OscalOffset uint16

	// AutoExitMs leaves the bootloader after this much idle time. Zero
	// disables auto-exit.
	AutoExitMs uint32

	// AutoExitNoUsbMs shortens the first idle period for a device that
	// never sees host traffic. Zero disables it.
	AutoExitNoUsbMs uint32

	// OscalRestore selects the calibration restore strategy.
	OscalRestore OscalRestoreMode

	// ClockHz is the CPU clock frequency.
	ClockHz uint32

	// WriteDelayMs is reported to the host as the pause it must leave
	// after an erase or write request.
	WriteDelayMs uint8
}

// ConfigError describes a configuration field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Unwrap returns the sentinel error classifying the failure.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(field string, err error, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Validate checks the structural invariants the bootloader relies on.
func (c *Config) Validate() error {
	if c.PageSize < 2 || c.PageSize > MaxPageSize || c.PageSize&(c.PageSize-1) != 0 {
		return configError("PageSize", pkg.ErrPageSize,
			"%d is not a power of two between 2 and %d", c.PageSize, MaxPageSize)
	}
	if c.FlashSize == 0 || c.FlashSize > 1<<16 || c.FlashSize%uint32(c.PageSize) != 0 {
		return configError("FlashSize", pkg.ErrInvalidConfig,
			"%d is not a multiple of the page size up to 64 KiB", c.FlashSize)
	}
	if c.BootloaderAddress%c.PageSize != 0 {
		return configError("BootloaderAddress", pkg.ErrMisaligned,
			"0x%04X is not a multiple of the page size %d", c.BootloaderAddress, c.PageSize)
	}
	if c.BootloaderAddress < 2*c.PageSize || uint32(c.BootloaderAddress) >= c.FlashSize {
		return configError("BootloaderAddress", pkg.ErrInvalidConfig,
			"0x%04X leaves no room for an application or the bootloader", c.BootloaderAddress)
	}
	if c.ResetVectorAddress() >= c.PageSize {
		return configError("ResetVectorOffset", pkg.ErrInvalidConfig,
			"vector %d is outside the first page", c.ResetVectorOffset)
	}
	if c.TinyvectorOffset < 2 || c.TinyvectorOffset > c.PageSize || c.TinyvectorOffset%2 != 0 {
		return configError("TinyvectorOffset", pkg.ErrMisaligned,
			"%d must be an even offset within the last application page", c.TinyvectorOffset)
	}
	if c.OscalOffset != 0 {
		if c.OscalOffset > c.PageSize || c.OscalOffset%2 != 0 {
			return configError("OscalOffset", pkg.ErrMisaligned,
				"%d must be an even offset within the last application page", c.OscalOffset)
		}
		if c.OscalOffset == c.TinyvectorOffset {
			return configError("OscalOffset", pkg.ErrInvalidConfig,
				"%d collides with the tinyvector slot", c.OscalOffset)
		}
	}
	if c.OscalRestore > OscalRestoreStored {
		return configError("OscalRestore", pkg.ErrInvalidConfig, "unknown mode %d", c.OscalRestore)
	}
	if c.OscalRestore == OscalRestoreStored && c.OscalOffset == 0 {
		return configError("OscalOffset", pkg.ErrInvalidConfig,
			"stored calibration restore needs a calibration slot")
	}
	if c.AutoExitNoUsbMs > c.AutoExitMs {
		return configError("AutoExitNoUsbMs", pkg.ErrInvalidConfig,
			"%d ms exceeds AutoExitMs %d ms", c.AutoExitNoUsbMs, c.AutoExitMs)
	}
	if n := GuardIterations(c.ClockHz); n == 0 || n > 0xFF {
		return configError("ClockHz", pkg.ErrInvalidConfig,
			"%d Hz gives %d bus guard iterations, want 1..255", c.ClockHz, n)
	}
	if !jumpReachable(c.ResetVectorAddress(), c.BootloaderAddress, c.FlashSize) {
		return configError("BootloaderAddress", pkg.ErrInvalidConfig,
			"0x%04X is out of relative jump range of the reset vector", c.BootloaderAddress)
	}
	return nil
}

// ResetVectorAddress returns the byte address of the application reset vector.
func (c *Config) ResetVectorAddress() uint16 {
	return c.ResetVectorOffset * 2
}

// TinyvectorAddress returns the byte address of the relocated reset vector.
// The bootloader jumps here to start the application.
func (c *Config) TinyvectorAddress() uint16 {
	return c.BootloaderAddress - c.TinyvectorOffset
}

// OscalAddress returns the byte address of the stored calibration, or
// false when the slot is disabled.
func (c *Config) OscalAddress() (uint16, bool) {
	if c.OscalOffset == 0 {
		return 0, false
	}
	return c.BootloaderAddress - c.OscalOffset, true
}

// Postscript returns the bytes below BootloaderAddress reserved for the
// tinyvector and calibration slots.
func (c *Config) Postscript() uint16 {
	if c.OscalOffset > c.TinyvectorOffset {
		return c.OscalOffset
	}
	return c.TinyvectorOffset
}

// Info returns the device information record reported to the host.
func (c *Config) Info() DeviceInfo {
	delay := c.WriteDelayMs
	if delay == 0 {
		delay = DefaultWriteDelayMs
	}
	size := uint16(c.BootloaderAddress - c.Postscript())
	page := uint8(c.PageSize)
	if c.PageSize == MaxPageSize {
		page = 0 // a full byte wraps; hosts read 0 as 256
	}
	return DeviceInfo{FlashSize: size, PageSize: page, WriteDelayMs: delay}
}

// DeviceInfoSize is the encoded size of DeviceInfo.
const DeviceInfoSize = 4

// DeviceInfo is the reply to a QueryInfo request.
type DeviceInfo struct {
	FlashSize    uint16 // Writable application bytes
	PageSize     uint8  // Flash page size in bytes
	WriteDelayMs uint8  // Recommended pause after erase or write
}

// MarshalTo encodes the record big-endian into buf.
// Returns the number of bytes written (4), or 0 if buf is too small.
func (d DeviceInfo) MarshalTo(buf []byte) int {
	if len(buf) < DeviceInfoSize {
		return 0
	}
	binary.BigEndian.PutUint16(buf[0:2], d.FlashSize)
	buf[2] = d.PageSize
	buf[3] = d.WriteDelayMs
	return DeviceInfoSize
}

// ParseDeviceInfo decodes a QueryInfo reply into out.
func ParseDeviceInfo(data []byte, out *DeviceInfo) error {
	if len(data) < DeviceInfoSize {
		return pkg.ErrShortReply
	}
	out.FlashSize = binary.BigEndian.Uint16(data[0:2])
	out.PageSize = data[2]
	out.WriteDelayMs = data[3]
	return nil
}

// PageBytes returns the page size, reading an encoded 0 as 256.
func (d DeviceInfo) PageBytes() int {
	if d.PageSize == 0 {
		return MaxPageSize
	}
	return int(d.PageSize)
}

// String returns a human-readable representation of the record.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("flash=%d page=%d writeDelay=%dms", d.FlashSize, d.PageBytes(), d.WriteDelayMs)
}
