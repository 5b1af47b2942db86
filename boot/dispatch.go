package boot

import (
	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// Setup dispatches a control request. It runs inside the transport's poll
// and only records state; flash work is left to the scheduler.
func (l *Loader) Setup(setup *hal.SetupPacket) ([]byte, bool) {
	l.session.Idle = 0

	cmd := Command(setup.Request)
	switch {
	case cmd == CommandQueryInfo:
		return l.info[:], false

	case cmd == CommandTransferPage:
		if setup.Index >= l.cfg.BootloaderAddress {
			pkg.LogDebug(pkg.ComponentDispatch, "transfer into bootloader refused",
				"address", setup.Index)
			return nil, false
		}
		// A write aborted earlier may have left words in the page buffer.
		l.flash.ClearBuffer()
		l.session.Address = setup.Index &^ 1
		return nil, true

	case cmd.IsInternal():
		pkg.LogDebug(pkg.ComponentDispatch, "reserved request ignored",
			"request", setup.Request)
		return nil, false

	default:
		l.session.Command = cmd
		return nil, false
	}
}

// Write consumes page data as little-endian words. Words at or beyond the
// bootloader address are dropped. It reports true, and schedules a page
// write, once the cursor sits on a page boundary.
func (l *Loader) Write(data []byte) bool {
	for len(data) >= 2 {
		if l.session.Address >= l.cfg.BootloaderAddress {
			break
		}
		l.fillWord(uint16(data[0]) | uint16(data[1])<<8)
		data = data[2:]
	}

	last := l.session.Address%l.cfg.PageSize == 0
	if last {
		l.session.Command = CommandWritePage
	}
	return last
}

// fillWord stages one word at the cursor after vector relocation.
func (l *Loader) fillWord(word uint16) {
	addr := l.session.Address
	word = l.relocator.Rewrite(&l.session, addr, word, l.platform.OscCal())
	l.flash.FillWord(addr, word)
	l.session.Address += 2
}
