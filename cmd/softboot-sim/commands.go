package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ardnew/softboot/boot"
	"github.com/ardnew/softboot/hal/fifo"
	"github.com/ardnew/softboot/host"
	"github.com/ardnew/softboot/image"
	"github.com/ardnew/softboot/pkg"
	"github.com/ardnew/softboot/sim"
	"github.com/ardnew/softboot/target"
)

func newInfoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Query the device information record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLink(cmd.Context(), func(l *link) error {
				info, err := l.client().Info()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "usb device:  %s\n", describeUSB(boot.USBVendorID, boot.USBProductID))
				fmt.Fprintf(out, "flash size:  %d bytes\n", info.FlashSize)
				fmt.Fprintf(out, "page size:   %d bytes\n", info.PageBytes())
				fmt.Fprintf(out, "write delay: %d ms\n", info.WriteDelayMs)
				return nil
			})
		},
	}
}

func newUploadCommand(opts *options) *cobra.Command {
	var noExit bool
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Erase, program an Intel HEX image and start it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.LoadHexFile(args[0])
			if err != nil {
				return err
			}
			return opts.withLink(cmd.Context(), func(l *link) error {
				out := cmd.OutOrStdout()
				c := l.client(host.WithProgress(func(p host.Progress) {
					fmt.Fprintf(out, "\rwriting page %d/%d at 0x%04X", p.Page, p.Pages, p.Address)
				}))
				if err := c.Upload(img, &l.Config); err != nil {
					return err
				}
				fmt.Fprintln(out)

				if noExit {
					return nil
				}
				if err := c.Exit(); err != nil {
					return err
				}
				return l.exited(out)
			})
		},
	}
	cmd.Flags().BoolVar(&noExit, "no-exit", false, "stay in the bootloader after programming")
	return cmd
}

func newEraseCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Erase the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLink(cmd.Context(), func(l *link) error {
				c := l.client()
				if _, err := c.Info(); err != nil {
					return err
				}
				if err := c.Erase(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "application erased")
				return nil
			})
		},
	}
}

func newServeCommand(opts *options) *cobra.Command {
	var entry bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bootloader on the --bus FIFOs until the application starts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.bus == "" {
				return fmt.Errorf("serve needs --bus: %w", pkg.ErrInvalidConfig)
			}
			dev, err := opts.device()
			if err != nil {
				return err
			}
			drv := fifo.New(opts.bus)
			defer drv.Close()

			out := cmd.OutOrStdout()
			dev.CPU.SetEntryRequested(entry)
			fmt.Fprintf(out, "serving %s on %s\n", describeUSB(boot.USBVendorID, boot.USBProductID), opts.bus)
			err = dev.Run(cmd.Context(), drv)
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				fmt.Fprintln(out, "stopped")
			case err != nil:
				return err
			default:
				if err := reportRunning(out, dev); err != nil {
					return err
				}
			}
			return opts.save(dev)
		},
	}
	cmd.Flags().BoolVar(&entry, "entry", true, "hold the bootloader entry trigger")
	return cmd
}

func newBootCommand(opts *options) *cobra.Command {
	var entry bool
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Power on and report what runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := opts.device()
			if err != nil {
				return err
			}
			dev.CPU.SetEntryRequested(entry)
			entered, err := dev.PowerOn(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if entered {
				fmt.Fprintln(out, "bootloader running")
				if dev.Loader().ApplicationPresent() {
					fmt.Fprintln(out, "application present")
				} else {
					fmt.Fprintln(out, "no application")
				}
				return nil
			}
			return reportRunning(out, dev)
		},
	}
	cmd.Flags().BoolVar(&entry, "entry", false, "hold the bootloader entry trigger")
	return cmd
}

func newDumpCommand(opts *options) *cobra.Command {
	var start, length string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Hex dump a flash range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := opts.device()
			if err != nil {
				return err
			}
			off, err := strconv.ParseUint(start, 0, 16)
			if err != nil {
				return fmt.Errorf("start %q: %w", start, err)
			}
			n, err := strconv.ParseUint(length, 0, 32)
			if err != nil {
				return fmt.Errorf("length %q: %w", length, err)
			}
			buf := make([]byte, n)
			got, err := dev.Flash.ReadAt(buf, int64(off))
			if err != nil && err != io.EOF {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), hex.Dump(buf[:got]))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "0", "first address")
	cmd.Flags().StringVar(&length, "length", "256", "number of bytes")
	return cmd
}

func newProfileCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the resolved target profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			return target.WriteProfile(cmd.OutOrStdout(), cfg)
		},
	}
}

func newTargetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List target presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range target.Names() {
				cfg, err := target.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, cfg.Info())
			}
			return nil
		},
	}
}

// reportRunning prints where the application was entered.
func reportRunning(out io.Writer, dev *sim.Device) error {
	if !dev.Running() {
		fmt.Fprintln(out, "bootloader still running: exit refused")
		return pkg.ErrNoApplication
	}
	entry, err := dev.ApplicationEntry()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "application started at 0x%04X\n", entry)
	return nil
}
