package host

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softboot/boot"
	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/hal/loopback"
	"github.com/ardnew/softboot/image"
	"github.com/ardnew/softboot/pkg"
)

// request records one control transfer seen by mockTransport.
type request struct {
	in      bool
	request uint8
	value   uint16
	index   uint16
	data    []byte
}

// mockTransport implements Transport for testing.
type mockTransport struct {
	requests []request
	info     []byte
	err      error
}

func (m *mockTransport) ControlIn(req uint8, value, index, length uint16) ([]byte, error) {
	m.requests = append(m.requests, request{in: true, request: req, value: value, index: index})
	if m.err != nil {
		return nil, m.err
	}
	return m.info, nil
}

func (m *mockTransport) ControlOut(req uint8, value, index uint16, data []byte) error {
	m.requests = append(m.requests, request{request: req, value: value, index: index, data: data})
	return m.err
}

func testConfig() boot.Config {
	return boot.Config{
		FlashSize:         2048,
		PageSize:          64,
		BootloaderAddress: 0x0600,
		TinyvectorOffset:  4,
		OscalOffset:       6,
		OscalRestore:      boot.OscalRestoreStored,
		ClockHz:           16_500_000,
	}
}

func TestClientInfo(t *testing.T) {
	m := &mockTransport{info: []byte{0x05, 0xFA, 64, 5}}
	c := New(m)

	info, err := c.Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	want := boot.DeviceInfo{FlashSize: 0x05FA, PageSize: 64, WriteDelayMs: 5}
	if info != want {
		t.Errorf("Info() = %v, want %v", info, want)
	}
	if len(m.requests) != 1 || !m.requests[0].in || m.requests[0].request != 0 {
		t.Errorf("requests = %+v, want one info request", m.requests)
	}
}

func TestClientInfoErrors(t *testing.T) {
	tests := []struct {
		name string
		m    *mockTransport
		err  error
	}{
		{"short reply", &mockTransport{info: []byte{0x05}}, pkg.ErrShortReply},
		{"stall", &mockTransport{err: pkg.ErrStall}, pkg.ErrStall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.m).Info(); !errors.Is(err, tt.err) {
				t.Errorf("Info() error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestClientRequests(t *testing.T) {
	m := &mockTransport{}
	c := New(m)

	if err := c.Erase(); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	if err := c.WritePage(0x0140, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	if err := c.Exit(); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}

	want := []request{
		{request: 2},
		{request: 1, value: 4, index: 0x0140, data: []byte{1, 2, 3, 4}},
		{request: 4},
	}
	if len(m.requests) != len(want) {
		t.Fatalf("len(requests) = %d, want %d", len(m.requests), len(want))
	}
	for i, r := range m.requests {
		w := want[i]
		if r.in || r.request != w.request || r.value != w.value || r.index != w.index || !bytes.Equal(r.data, w.data) {
			t.Errorf("requests[%d] = %+v, want %+v", i, r, w)
		}
	}
}

func TestClientWriteDelay(t *testing.T) {
	m := &mockTransport{info: []byte{0x05, 0xFA, 64, 5}}
	var slept time.Duration
	c := New(m, WithSleep(func(d time.Duration) { slept += d }))

	if err := c.WritePage(0, nil); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	if slept != 0 {
		t.Errorf("slept %v before Info(), want 0", slept)
	}

	if _, err := c.Info(); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if err := c.WritePage(0, nil); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	if slept != 5*time.Millisecond {
		t.Errorf("slept %v after WritePage(), want 5ms", slept)
	}

	slept = 0
	if err := c.Erase(); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	// 1530 bytes in 64-byte pages, plus one.
	if want := 24 * 5 * time.Millisecond; slept != want {
		t.Errorf("slept %v after Erase(), want %v", slept, want)
	}
}

func TestClientUploadMismatch(t *testing.T) {
	m := &mockTransport{info: []byte{0x17, 0xFA, 64, 5}}
	cfg := testConfig()
	img := image.FromBinary([]byte{0x1F, 0xC0})

	err := New(m).Upload(img, &cfg)
	if !errors.Is(err, pkg.ErrInvalidConfig) {
		t.Errorf("Upload() error = %v, want %v", err, pkg.ErrInvalidConfig)
	}
	if len(m.requests) != 1 {
		t.Errorf("len(requests) = %d, want 1", len(m.requests))
	}
}

// platform implements boot.Platform for testing.
type platform struct {
	jumps []uint16
}

func (p *platform) EntryRequested() bool  { return false }
func (p *platform) OscCal() uint8         { return 0x80 }
func (p *platform) SetOscCal(uint8)       {}
func (p *platform) BusyWaitCycles(uint32) {}
func (p *platform) DelayMs(uint32)        {}
func (p *platform) Jump(addr uint16)      { p.jumps = append(p.jumps, addr) }

func TestClientUploadLoopback(t *testing.T) {
	cfg := testConfig()
	mem := flash.NewMemory(int(cfg.FlashSize), cfg.PageSize)
	drv := loopback.New()
	p := &platform{}
	ldr, err := boot.New(cfg, mem, drv, p)
	if err != nil {
		t.Fatalf("boot.New() error = %v", err)
	}
	if err := ldr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	exited := false
	h := loopback.NewHost(drv, func() bool {
		if ldr.Step() {
			ldr.Exit()
			exited = true
			return true
		}
		return false
	})

	data := make([]byte, 0x0180)
	for i := range data {
		data[i] = byte(i)
	}
	data[0], data[1] = 0x1F, 0xC0 // rjmp 0x0040

	var progress []Progress
	c := New(h, WithProgress(func(pr Progress) { progress = append(progress, pr) }))
	if err := c.Upload(image.FromBinary(data), &cfg); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if n := len(progress); n != 7 {
		t.Errorf("progress callbacks = %d, want 7", n)
	}
	if last := progress[len(progress)-1]; last.Page != last.Pages || last.Address != 0x05C0 {
		t.Errorf("last progress = %+v, want page %d at 0x05C0", last, last.Pages)
	}

	if err := c.Exit(); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if !exited || len(p.jumps) != 1 {
		t.Fatalf("exited = %v, jumps = %v, want one jump", exited, p.jumps)
	}

	tiny := cfg.TinyvectorAddress()
	if got := boot.DecodeRelativeJump(tiny, flash.ReadWord(mem, tiny), cfg.FlashSize); got != 0x0040 {
		t.Errorf("application entry = 0x%04X, want 0x0040", got)
	}
	if got := flash.ReadWord(mem, 0x0102); got != 0x0302 {
		t.Errorf("ReadWord(0x0102) = 0x%04X, want 0x0302", got)
	}
}
