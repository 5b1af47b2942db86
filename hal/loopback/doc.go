// Package loopback implements an in-memory transport driver for the
// bootloader together with the host side that talks to it.
//
// The [Driver] satisfies [hal.Driver]. A [Host] queues control transfers
// as individual packets (SETUP, OUT data, status handshake) and advances
// the device one scheduler step at a time until the bus drains, so tests
// and the simulator exercise the exact poll ordering the bootloader sees
// on hardware:
//
//	drv := loopback.New()
//	ldr, _ := boot.New(cfg, mem, drv, cpu)
//	_ = ldr.Start(ctx)
//	host := loopback.NewHost(drv, ldr.Step)
//	info, err := host.ControlIn(0, 0, 0, 4)
//
// The driver reports pending activity while further data packets of a
// multi-packet transfer are queued, which triggers the bootloader's bus
// resynchronization guard.
package loopback
