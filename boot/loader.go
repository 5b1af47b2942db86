package boot

import (
	"context"

	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/pkg"
)

// Platform exposes the CPU services the bootloader needs beyond flash and
// the USB transport.
type Platform interface {
	// EntryRequested reports whether the bootloader was explicitly asked
	// for at reset, for example by a held button or a reset cause.
	EntryRequested() bool

	// OscCal returns the oscillator calibration register.
	OscCal() uint8

	// SetOscCal writes the oscillator calibration register.
	SetOscCal(v uint8)

	// BusyWaitCycles spins for n CPU cycles, returning early only when the
	// platform samples bus activity and restarts the count itself.
	BusyWaitCycles(n uint32)

	// DelayMs blocks for ms milliseconds.
	DelayMs(ms uint32)

	// Jump transfers control to the byte address addr. On hardware it
	// never returns.
	Jump(addr uint16)
}

// Settle delays around bus attach and detach.
const (
	reconnectDelayMs = 300
	exitDelayMs      = 10
)

// Loader is the bootloader: it implements hal.Handler for the transport
// driver and runs the scheduler that programs flash.
type Loader struct {
	cfg       Config
	flash     flash.ReadWriter
	driver    hal.Driver
	platform  Platform
	relocator Relocator

	session Session

	info         [DeviceInfoSize]byte
	guardCycles  uint32
	autoExitIdle uint32
	oscalDefault uint8
	started      bool
	exited       bool
}

// New creates a bootloader for cfg on the given flash, transport driver
// and platform. The configuration is validated first.
func New(cfg Config, mem flash.ReadWriter, drv hal.Driver, p Platform) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loader{
		cfg:         cfg,
		flash:       mem,
		driver:      drv,
		platform:    p,
		relocator:   NewRelocator(&cfg),
		guardCycles: GuardCycles(cfg.ClockHz),
	}
	// Calibration as the reset left it, before USB sync retunes it.
	l.oscalDefault = p.OscCal()
	l.cfg.Info().MarshalTo(l.info[:])
	if cfg.AutoExitMs > 0 {
		l.autoExitIdle = cfg.AutoExitMs * IdleTicksPerMs
	}
	return l, nil
}

// Config returns the loader configuration.
func (l *Loader) Config() Config {
	return l.cfg
}

// Session returns a copy of the session state.
func (l *Loader) Session() Session {
	return l.session
}

// Exited reports whether the exit sequence has run.
func (l *Loader) Exited() bool {
	return l.exited
}

// ApplicationPresent reports whether flash holds an application: the high
// byte of the relocated reset vector is not erased.
func (l *Loader) ApplicationPresent() bool {
	return l.flash.ReadByte(l.cfg.TinyvectorAddress()+1) != flash.Erased
}

// EntryCondition reports whether the bootloader must run at this reset.
func (l *Loader) EntryCondition() bool {
	return l.platform.EntryRequested() || !l.ApplicationPresent()
}

// Start brings up the transport and prepares a fresh session.
func (l *Loader) Start(ctx context.Context) error {
	if l.started {
		return pkg.ErrAlreadyRunning
	}

	l.driver.SetHandler(l)
	l.driver.Disconnect()
	l.platform.DelayMs(reconnectDelayMs)
	l.driver.Connect()
	if err := l.driver.Init(ctx); err != nil {
		return err
	}

	l.session = Session{}
	if l.cfg.AutoExitNoUsbMs > 0 {
		l.session.Idle = (l.cfg.AutoExitMs - l.cfg.AutoExitNoUsbMs) * IdleTicksPerMs
	}
	l.started = true

	pkg.LogInfo(pkg.ComponentLoader, "bootloader started",
		"version", VersionMajor*100+VersionMinor,
		"bootloader", l.cfg.BootloaderAddress,
		"pageSize", l.cfg.PageSize,
		"application", l.ApplicationPresent())
	return nil
}

// Boot runs the bootloader from reset: it enters the scheduler when the
// entry condition holds and finishes by starting the application. It
// returns early only if ctx is cancelled or the transport fails.
func (l *Loader) Boot(ctx context.Context) error {
	if l.EntryCondition() {
		if err := l.Start(ctx); err != nil {
			return err
		}
		if err := l.Run(ctx); err != nil {
			return err
		}
	} else {
		pkg.LogDebug(pkg.ComponentLoader, "entry condition not met")
	}
	l.Exit()
	return nil
}
