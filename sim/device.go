package sim

import (
	"context"

	"github.com/ardnew/softboot/boot"
	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/hal/loopback"
	"github.com/ardnew/softboot/host"
	"github.com/ardnew/softboot/pkg"
)

// DefaultOscCal is the calibration register value after a simulated reset.
const DefaultOscCal = 0x80

// Device is a simulated microcontroller running the bootloader, wired to
// a host over the loopback transport. Flash persists across power cycles.
type Device struct {
	Config boot.Config
	Flash  *flash.Memory
	CPU    *CPU

	driver *loopback.Driver
	loader *boot.Loader
	host   *loopback.Host
}

// New creates a simulated device for cfg with erased flash.
func New(cfg boot.Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Device{
		Config: cfg,
		Flash:  flash.NewMemory(int(cfg.FlashSize), cfg.PageSize),
		CPU:    NewCPU(DefaultOscCal),
	}, nil
}

// PowerOn resets the device. It reports true if the bootloader took over
// the bus; otherwise the application was started straight away.
func (d *Device) PowerOn(ctx context.Context) (bool, error) {
	d.reset()
	d.driver = loopback.New()

	ldr, err := boot.New(d.Config, d.Flash, d.driver, d.CPU)
	if err != nil {
		return false, err
	}
	d.loader = ldr
	d.host = loopback.NewHost(d.driver, d.step)

	if !ldr.EntryCondition() {
		ldr.Exit()
		return false, nil
	}
	if err := ldr.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Run resets the device and boots it on drv, which may be any transport.
// It returns once the bootloader has started the application, or early
// when ctx is cancelled. Host and Driver are nil for such a power cycle.
func (d *Device) Run(ctx context.Context, drv hal.Driver) error {
	d.reset()
	d.driver = nil
	d.host = nil

	ldr, err := boot.New(d.Config, d.Flash, drv, d.CPU)
	if err != nil {
		return err
	}
	d.loader = ldr
	return ldr.Boot(ctx)
}

// reset replaces the CPU with a freshly reset one. The entry trigger is
// external, so it survives.
func (d *Device) reset() {
	cpu := NewCPU(DefaultOscCal)
	cpu.SetEntryRequested(d.CPU.EntryRequested())
	d.CPU = cpu
}

// step advances the bootloader one tick and runs the exit sequence when
// the scheduler ends.
func (d *Device) step() bool {
	if d.loader.Exited() {
		return true
	}
	if d.loader.Step() {
		d.loader.Exit()
		return true
	}
	return false
}

// Client returns a protocol client talking to the device.
func (d *Device) Client(opts ...host.Option) *host.Client {
	return host.New(d.host, opts...)
}

// Host returns the transport side of the simulated bus.
func (d *Device) Host() *loopback.Host {
	return d.host
}

// Loader returns the bootloader of the current power cycle.
func (d *Device) Loader() *boot.Loader {
	return d.loader
}

// Driver returns the transport driver of the current power cycle.
func (d *Device) Driver() *loopback.Driver {
	return d.driver
}

// Running reports whether the application has been started.
func (d *Device) Running() bool {
	return d.loader != nil && d.loader.Exited()
}

// ApplicationEntry follows the jump the device made into the application
// and returns the address of the application's first instruction.
func (d *Device) ApplicationEntry() (uint16, error) {
	jumps := d.CPU.Jumps()
	if len(jumps) == 0 {
		return 0, pkg.ErrNoApplication
	}
	at := jumps[len(jumps)-1]
	word := flash.ReadWord(d.Flash, at)
	if !boot.IsRelativeJump(word) {
		return 0, pkg.ErrNoApplication
	}
	return boot.DecodeRelativeJump(at, word, d.Config.FlashSize), nil
}
