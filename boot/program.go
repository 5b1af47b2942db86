package boot

import (
	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/pkg"
)

// writePage commits the page buffer to the page the cursor just left.
func (l *Loader) writePage() {
	addr := l.session.Address - 2
	if l.session.Address == 0 || addr >= l.cfg.BootloaderAddress {
		pkg.LogWarn(pkg.ComponentFlash, "page write outside application refused",
			"address", l.session.Address)
		return
	}
	l.flash.CommitPage(addr)
	pkg.LogDebug(pkg.ComponentFlash, "page written",
		"page", addr&^(l.cfg.PageSize-1))
}

// eraseApplication erases every application page from the bootloader
// down to page 0, then writes page 0 back so the reset vector jumps into
// the bootloader again. Page 0 holds that jump, so it is erased last.
func (l *Loader) eraseApplication() {
	pages := 0
	for ptr := l.cfg.BootloaderAddress; ptr > 0; pages++ {
		ptr -= l.cfg.PageSize
		l.flash.ErasePage(ptr)
	}

	l.session.Address = 0
	l.flash.ClearBuffer()
	for i := uint16(0); i < l.cfg.PageSize/2; i++ {
		l.fillWord(flash.ErasedWord)
	}
	l.writePage()

	pkg.LogInfo(pkg.ComponentFlash, "application erased", "pages", pages)
}
