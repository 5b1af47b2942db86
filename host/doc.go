// Package host implements the host side of the bootloader request
// protocol on top of any control-transfer [Transport].
//
// The [Client] queries device information, erases the application,
// transfers pages and requests exit. [Client.Upload] combines these into
// the usual programming sequence:
//
//	c := host.New(transport, host.WithSleep(time.Sleep))
//	if err := c.Upload(img, &cfg); err != nil {
//	    return err
//	}
//	return c.Exit()
package host
