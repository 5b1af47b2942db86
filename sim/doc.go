// Package sim runs the bootloader core on a simulated microcontroller.
//
// A [Device] combines [flash.Memory], the loopback transport and a [CPU]
// implementing [boot.Platform]. Flash contents survive [Device.PowerOn],
// so a test or the softboot-sim command can erase, upload, power cycle and
// check which code the device starts:
//
//	dev, _ := sim.New(cfg)
//	inBootloader, _ := dev.PowerOn(ctx)
//	c := dev.Client()
//	_ = c.Upload(img, &cfg)
//	_ = c.Exit()
//	entry, _ := dev.ApplicationEntry()
package sim
