// Package boot implements a USB bootloader core for small microcontrollers
// that reprogram their own flash.
//
// The bootloader receives an application image through vendor control
// requests, stages it page by page in the flash page buffer and commits
// each full page. It coexists with arbitrary application code by
// rewriting two words while programming: the application's reset vector
// becomes a jump into the bootloader, and the original vector moves to a
// "tinyvector" slot just below the bootloader, from where the bootloader
// starts the application.
//
// # Architecture
//
//   - [Loader.Setup] dispatches control requests (the command dispatcher)
//   - [Loader.Write] accumulates page data (the page accumulator)
//   - [Relocator] rewrites the reset vector and tinyvector slots
//   - [Loader.Step] and [Loader.Run] form the cooperative scheduler
//   - [Loader.Exit] restores hardware state and starts the application
//
// Setup and Write run synchronously inside the transport's Poll, which the
// scheduler calls from Step, so all state lives in one [Session] without
// locking.
//
// # Requests
//
//	code 0  QueryInfo         reply: flash size (BE16), page size, write delay
//	code 1  TransferPage      wIndex: address; OUT data phase follows
//	code 2  EraseApplication  deferred to the scheduler
//	code 4  Exit              deferred; refused while no application is present
//
// # Example
//
//	ldr, err := boot.New(cfg, mem, driver, platform)
//	if err != nil {
//	    return err
//	}
//	return ldr.Boot(ctx)
package boot
