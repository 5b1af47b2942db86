package sim

import (
	"sync"

	"github.com/ardnew/softboot/pkg"
)

// CPU implements boot.Platform for a simulated microcontroller. It
// records every timing and control-flow request instead of performing it.
type CPU struct {
	entry     bool
	oscal     uint8
	jumps     []uint16
	busyWaits int
	cycles    uint64
	delayMs   uint64
	mutex     sync.Mutex
}

// NewCPU creates a CPU whose calibration register holds oscal after reset.
func NewCPU(oscal uint8) *CPU {
	return &CPU{oscal: oscal}
}

// SetEntryRequested sets what EntryRequested reports.
func (c *CPU) SetEntryRequested(v bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entry = v
}

// EntryRequested reports whether the bootloader entry trigger is held.
func (c *CPU) EntryRequested() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.entry
}

// OscCal returns the calibration register.
func (c *CPU) OscCal() uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.oscal
}

// SetOscCal writes the calibration register.
func (c *CPU) SetOscCal(v uint8) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.oscal = v
}

// BusyWaitCycles accounts n cycles of busy waiting.
func (c *CPU) BusyWaitCycles(n uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.busyWaits++
	c.cycles += uint64(n)
}

// DelayMs accounts ms milliseconds of delay.
func (c *CPU) DelayMs(ms uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.delayMs += uint64(ms)
}

// Jump records a jump to addr.
func (c *CPU) Jump(addr uint16) {
	c.mutex.Lock()
	c.jumps = append(c.jumps, addr)
	c.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentSim, "jump", "address", addr)
}

// Jumps returns the recorded jump targets.
func (c *CPU) Jumps() []uint16 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]uint16, len(c.jumps))
	copy(out, c.jumps)
	return out
}

// BusyWaits returns the number of busy-wait calls and their total cycles.
func (c *CPU) BusyWaits() (calls int, cycles uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busyWaits, c.cycles
}

// DelayedMs returns the total delay requested.
func (c *CPU) DelayedMs() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.delayMs
}
