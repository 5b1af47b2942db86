package boot

import (
	"bytes"
	"context"
	"testing"

	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/hal"
	"github.com/ardnew/softboot/hal/loopback"
)

// mockPlatform implements Platform for testing.
type mockPlatform struct {
	entry     bool
	oscal     uint8
	oscalSets []uint8
	jumps     []uint16
	busyWaits []uint32
	delays    []uint32
}

func (m *mockPlatform) EntryRequested() bool { return m.entry }
func (m *mockPlatform) OscCal() uint8        { return m.oscal }

func (m *mockPlatform) SetOscCal(v uint8) {
	m.oscal = v
	m.oscalSets = append(m.oscalSets, v)
}

func (m *mockPlatform) BusyWaitCycles(n uint32) { m.busyWaits = append(m.busyWaits, n) }
func (m *mockPlatform) DelayMs(ms uint32)       { m.delays = append(m.delays, ms) }
func (m *mockPlatform) Jump(addr uint16)        { m.jumps = append(m.jumps, addr) }

// scriptDriver implements hal.Driver, running one scripted action per Poll.
type scriptDriver struct {
	handler     hal.Handler
	actions     []func(h hal.Handler)
	pending     bool
	polls       int
	inits       int
	connects    int
	disconnects int
	interrupts  bool
	initErr     error
}

func (d *scriptDriver) Init(ctx context.Context) error {
	d.inits++
	if d.initErr != nil {
		return d.initErr
	}
	d.interrupts = true
	return nil
}

func (d *scriptDriver) Connect()                 { d.connects++ }
func (d *scriptDriver) Disconnect()              { d.disconnects++ }
func (d *scriptDriver) DisableInterrupt()        { d.interrupts = false }
func (d *scriptDriver) SetHandler(h hal.Handler) { d.handler = h }
func (d *scriptDriver) Pending() bool            { return d.pending }

func (d *scriptDriver) Poll() {
	d.polls++
	if len(d.actions) == 0 {
		return
	}
	a := d.actions[0]
	d.actions = d.actions[1:]
	if a != nil {
		a(d.handler)
	}
}

func setupAction(request uint8, index uint16) func(hal.Handler) {
	return func(h hal.Handler) {
		var s hal.SetupPacket
		hal.VendorSetup(&s, false, request, 0, index, 0)
		h.Setup(&s)
	}
}

func writeAction(data []byte) func(hal.Handler) {
	return func(h hal.Handler) {
		h.Write(data)
	}
}

// testConfig returns a small 2 KiB part with a 512-byte bootloader.
func testConfig() Config {
	return Config{
		FlashSize:         2048,
		PageSize:          64,
		BootloaderAddress: 0x0600,
		ResetVectorOffset: 0,
		TinyvectorOffset:  4,
		OscalOffset:       6,
		OscalRestore:      OscalRestoreStored,
		ClockHz:           16_500_000,
		WriteDelayMs:      5,
	}
}

// bootloaderPattern fills the bootloader area of mem with a known pattern
// and returns it.
func bootloaderPattern(t *testing.T, mem *flash.Memory, cfg Config) []byte {
	t.Helper()
	image := make([]byte, cfg.FlashSize)
	for i := range image {
		image[i] = flash.Erased
		if i >= int(cfg.BootloaderAddress) {
			image[i] = byte(i*7) & 0x7F
		}
	}
	if err := mem.Load(bytes.NewReader(image)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return image[cfg.BootloaderAddress:]
}

func checkBootloaderIntact(t *testing.T, mem *flash.Memory, cfg Config, want []byte) {
	t.Helper()
	for i, w := range want {
		addr := cfg.BootloaderAddress + uint16(i)
		if got := mem.ReadByte(addr); got != w {
			t.Fatalf("bootloader byte 0x%04X = 0x%02X, want 0x%02X", addr, got, w)
		}
	}
}

type testRig struct {
	loader   *Loader
	mem      *flash.Memory
	driver   *loopback.Driver
	platform *mockPlatform
	host     *loopback.Host
}

// newRig creates a started loader on loopback transport and simulated flash.
func newRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	r := &testRig{
		mem:      flash.NewMemory(int(cfg.FlashSize), cfg.PageSize),
		driver:   loopback.New(),
		platform: &mockPlatform{oscal: 0x80},
	}
	ldr, err := New(cfg, r.mem, r.driver, r.platform)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ldr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.loader = ldr
	r.host = loopback.NewHost(r.driver, ldr.Step)
	return r
}

func (r *testRig) writePage(t *testing.T, addr uint16, data []byte) {
	t.Helper()
	if err := r.host.ControlOut(uint8(CommandTransferPage), uint16(len(data)), addr, data); err != nil {
		t.Fatalf("ControlOut(transfer 0x%04X) error = %v", addr, err)
	}
}

func (r *testRig) request(t *testing.T, cmd Command) {
	t.Helper()
	if err := r.host.ControlOut(uint8(cmd), 0, 0, nil); err != nil {
		t.Fatalf("ControlOut(%s) error = %v", cmd, err)
	}
}

// appImage returns a full application area of pseudo-random words whose
// reset vector jumps to entry.
func appImage(cfg Config, entry uint16) []byte {
	img := make([]byte, cfg.BootloaderAddress)
	seed := uint32(0x12345678)
	for i := range img {
		seed = seed*1664525 + 1013904223
		img[i] = byte(seed >> 24)
	}
	at := cfg.ResetVectorAddress()
	jump := EncodeRelativeJump(at, entry)
	img[at] = byte(jump)
	img[at+1] = byte(jump >> 8)
	return img
}

func (r *testRig) upload(t *testing.T, img []byte) {
	t.Helper()
	size := int(r.loader.cfg.PageSize)
	for base := 0; base < len(img); base += size {
		r.writePage(t, uint16(base), img[base:base+size])
	}
}

// newScripted creates an unstarted loader on a scripted driver.
func newScripted(t *testing.T, cfg Config) (*Loader, *flash.Memory, *scriptDriver, *mockPlatform) {
	t.Helper()
	mem := flash.NewMemory(int(cfg.FlashSize), cfg.PageSize)
	drv := &scriptDriver{}
	p := &mockPlatform{oscal: 0x80}
	ldr, err := New(cfg, mem, drv, p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	drv.SetHandler(ldr)
	return ldr, mem, drv, p
}

func vendorSetup(request uint8, value, index, length uint16) *hal.SetupPacket {
	var s hal.SetupPacket
	hal.VendorSetup(&s, length > 0, request, value, index, length)
	return &s
}

// installApplication programs a tinyvector jumping to entry, which marks
// an application present.
func installApplication(mem *flash.Memory, cfg Config, entry uint16) {
	tiny := cfg.TinyvectorAddress()
	mem.ClearBuffer()
	mem.FillWord(tiny, EncodeRelativeJump(tiny, entry))
	mem.CommitPage(tiny)
}
