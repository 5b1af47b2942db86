// Package hal defines the transport contract between the bootloader and
// the USB driver underneath it.
//
// The driver is treated as an opaque, correct collaborator. The bootloader
// only needs to initialize it, attach and detach from the bus, poll it once
// per scheduling step, read its pending-activity flag, and register a
// [Handler] that receives control requests and OUT data packets.
//
// # Interface Overview
//
//   - [Driver] is implemented by the platform's USB driver
//   - [Handler] is implemented by the bootloader's command dispatcher
//   - [SetupPacket] is the 8-byte control request the handler receives
//
// # Zero-Allocation Design
//
// SETUP packets are parsed into caller-provided structures and handlers
// return reply slices that remain valid until the next Poll, so no
// allocation happens on the bus path.
//
// An in-memory driver for testing and simulation is available in
// [github.com/ardnew/softboot/hal/loopback].
package hal
