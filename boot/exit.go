package boot

import (
	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/pkg"
)

// Exit leaves the bootloader: it detaches from the bus, silences the
// transport interrupt, puts the oscillator calibration back and jumps to
// the relocated application reset vector. On hardware it never returns.
func (l *Loader) Exit() {
	if l.exited {
		pkg.LogWarn(pkg.ComponentLoader, "exit repeated", "error", pkg.ErrExited)
		return
	}
	l.exited = true

	// The host needs a few more frames before the device drops off.
	l.platform.DelayMs(exitDelayMs)
	l.driver.Disconnect()
	l.driver.DisableInterrupt()

	switch l.cfg.OscalRestore {
	case OscalRestoreDefault:
		l.platform.SetOscCal(l.oscalDefault)
	case OscalRestoreStored:
		if addr, ok := l.cfg.OscalAddress(); ok {
			v := l.flash.ReadByte(addr)
			if v != flash.Erased && v != 0x00 {
				l.platform.SetOscCal(v)
			}
		}
	}

	target := l.cfg.TinyvectorAddress()
	pkg.LogInfo(pkg.ComponentLoader, "starting application", "address", target)
	l.platform.Jump(target)
}
