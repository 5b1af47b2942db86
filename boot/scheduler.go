package boot

import (
	"context"

	"github.com/ardnew/softboot/pkg"
)

// Step runs one scheduler tick and reports whether the bootloader should
// exit. A tick with no command touches nothing but the transport.
func (l *Loader) Step() bool {
	l.session.Command = CommandNop
	l.driver.Poll()

	// Activity during the poll means a packet may still be on the wire.
	// Resynchronizing mid-transmission would corrupt it.
	if l.driver.Pending() {
		l.platform.BusyWaitCycles(l.guardCycles)
	}

	if l.session.Command == CommandNop {
		return false
	}

	// Let the driver answer the status stage before flash freezes the CPU.
	l.driver.Poll()
	l.session.Idle++

	switch l.session.Command {
	case CommandEraseApplication:
		l.eraseApplication()
	case CommandWritePage:
		l.writePage()
	}

	if l.autoExitIdle > 0 && l.session.Idle >= l.autoExitIdle {
		pkg.LogDebug(pkg.ComponentScheduler, "idle limit reached", "idle", l.session.Idle)
		l.session.Command = CommandExit
	}

	if l.session.Command != CommandExit {
		return false
	}
	if !l.ApplicationPresent() {
		pkg.LogWarn(pkg.ComponentScheduler, "exit refused", "error", pkg.ErrNoApplication)
		return false
	}
	return true
}

// Run steps the scheduler until it decides to exit or ctx is cancelled.
func (l *Loader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if l.Step() {
			return nil
		}
	}
}
