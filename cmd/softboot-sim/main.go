// Command softboot-sim runs the bootloader core against a simulated
// microcontroller: flash, USB transport and CPU all live in memory, and
// flash contents can be kept in a file between invocations.
//
// With --bus, a device started by serve listens on named pipes in that
// directory, and info, upload and erase reach it from another process.
//
// Usage:
//
//	softboot-sim [flags] <command>
//
// Commands:
//
//	info            query the device information record
//	upload FILE     erase, program an Intel HEX image and start it
//	erase           erase the application
//	boot            power on and report what runs
//	serve           run the bootloader on the --bus FIFOs
//	dump            hex dump a flash range
//	profile         print the resolved target profile
//	targets         list target presets
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
