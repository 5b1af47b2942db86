package host

import (
	"fmt"
	"time"

	"github.com/ardnew/softboot/boot"
	"github.com/ardnew/softboot/image"
	"github.com/ardnew/softboot/pkg"
)

// Transport carries vendor control requests to a device.
type Transport interface {
	// ControlIn performs an IN request and returns the reply.
	ControlIn(request uint8, value, index, length uint16) ([]byte, error)

	// ControlOut performs an OUT request with an optional data phase.
	ControlOut(request uint8, value, index uint16, data []byte) error
}

// Progress reports upload progress.
type Progress struct {
	Page    int
	Pages   int
	Address uint16
}

// Client speaks the bootloader request protocol.
type Client struct {
	transport Transport
	sleep     func(time.Duration)
	progress  func(Progress)
	info      boot.DeviceInfo
	hasInfo   bool
}

// Option configures a Client.
type Option func(*Client)

// WithSleep sets the function used to honor the device's write delay.
// The default does not sleep, which suits in-process transports.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithProgress sets a callback invoked after each page is sent.
func WithProgress(fn func(Progress)) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// New creates a client on t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		sleep:     func(time.Duration) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Info queries the device information record.
func (c *Client) Info() (boot.DeviceInfo, error) {
	reply, err := c.transport.ControlIn(uint8(boot.CommandQueryInfo), 0, 0, boot.DeviceInfoSize)
	if err != nil {
		return boot.DeviceInfo{}, fmt.Errorf("query info: %w", err)
	}
	var info boot.DeviceInfo
	if err := boot.ParseDeviceInfo(reply, &info); err != nil {
		return boot.DeviceInfo{}, fmt.Errorf("query info: %w", err)
	}
	c.info = info
	c.hasInfo = true
	return info, nil
}

func (c *Client) writeDelay() {
	if c.hasInfo {
		c.sleep(time.Duration(c.info.WriteDelayMs) * time.Millisecond)
	}
}

// Erase asks the device to erase the application.
func (c *Client) Erase() error {
	if err := c.transport.ControlOut(uint8(boot.CommandEraseApplication), 0, 0, nil); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	// Erase freezes the device once per page.
	if c.hasInfo {
		pages := int(c.info.FlashSize)/c.info.PageBytes() + 1
		for i := 0; i < pages; i++ {
			c.writeDelay()
		}
	}
	return nil
}

// WritePage transfers one page of data to addr.
func (c *Client) WritePage(addr uint16, data []byte) error {
	err := c.transport.ControlOut(uint8(boot.CommandTransferPage), uint16(len(data)), addr, data)
	if err != nil {
		return fmt.Errorf("write page 0x%04X: %w", addr, err)
	}
	c.writeDelay()
	return nil
}

// Exit asks the device to start the application.
func (c *Client) Exit() error {
	if err := c.transport.ControlOut(uint8(boot.CommandExit), 0, 0, nil); err != nil {
		return fmt.Errorf("exit: %w", err)
	}
	return nil
}

// Upload erases the device and writes every page of img. It does not
// request exit.
func (c *Client) Upload(img *image.Image, cfg *boot.Config) error {
	info, err := c.Info()
	if err != nil {
		return err
	}
	if want := cfg.Info(); info != want {
		return fmt.Errorf("device reports %s, target is %s: %w", info, want, pkg.ErrInvalidConfig)
	}
	pages, err := img.Pages(cfg)
	if err != nil {
		return err
	}
	if err := c.Erase(); err != nil {
		return err
	}
	for i, p := range pages {
		if err := c.WritePage(p.Address, p.Data); err != nil {
			return err
		}
		if c.progress != nil {
			c.progress(Progress{Page: i + 1, Pages: len(pages), Address: p.Address})
		}
	}
	pkg.LogInfo(pkg.ComponentLoader, "image uploaded", "pages", len(pages))
	return nil
}
