package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/softboot/boot"
	"github.com/ardnew/softboot/hal/fifo"
	"github.com/ardnew/softboot/host"
	"github.com/ardnew/softboot/pkg"
	"github.com/ardnew/softboot/pkg/prof"
	"github.com/ardnew/softboot/sim"
	"github.com/ardnew/softboot/target"
)

// dialTimeout bounds the wait for a device on the bus.
const dialTimeout = 5 * time.Second

// component identifies this executable for structured logging.
const component = pkg.ComponentSim

// options holds the persistent flags shared by all commands.
type options struct {
	target    string
	profile   string
	flashFile string
	bus       string
	logFile   string
	verbose   bool
	jsonLog   bool

	prof    prof.Options
	session *prof.Session
	logOut  *os.File
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "softboot-sim",
		Short:        "Run the USB bootloader on a simulated microcontroller",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				pkg.SetLogLevel(slog.LevelDebug)
			}
			if opts.jsonLog {
				pkg.SetLogFormat(pkg.LogFormatJSON)
			}
			if err := opts.openLog(); err != nil {
				return err
			}
			return opts.startProfiling()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return errors.Join(opts.stopProfiling(), opts.closeLog())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.target, "target", "t", target.Default, "target preset name")
	flags.StringVarP(&opts.profile, "profile", "p", "", "YAML target profile (overrides --target)")
	flags.StringVarP(&opts.flashFile, "flash", "f", "", "file holding simulated flash contents")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose (debug) logging")
	flags.StringVarP(&opts.bus, "bus", "b", "", "FIFO bus directory of a device started with serve")
	flags.BoolVar(&opts.jsonLog, "json", false, "use JSON log format")
	flags.StringVar(&opts.logFile, "log", "", "append log output to this file instead of stderr")
	flags.StringVar(&opts.prof.CPU, "cpuprofile", "", "write a CPU profile to this file")
	flags.StringVar(&opts.prof.Heap, "memprofile", "", "write a heap profile to this file")
	flags.StringVar(&opts.prof.Listen, "pprof", "", "serve /debug/pprof/ on this address")

	root.AddCommand(
		newInfoCommand(opts),
		newUploadCommand(opts),
		newEraseCommand(opts),
		newBootCommand(opts),
		newDumpCommand(opts),
		newServeCommand(opts),
		newProfileCommand(opts),
		newTargetsCommand(),
	)
	return root
}

// config resolves the target configuration from the flags.
func (o *options) config() (boot.Config, error) {
	if o.profile != "" {
		return target.LoadProfileFile(o.profile)
	}
	return target.Lookup(o.target)
}

// device creates the simulated device and restores persisted flash.
func (o *options) device() (*sim.Device, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	dev, err := sim.New(cfg)
	if err != nil {
		return nil, err
	}
	if o.flashFile == "" {
		return dev, nil
	}
	f, err := os.Open(o.flashFile)
	if errors.Is(err, fs.ErrNotExist) {
		pkg.LogDebug(component, "starting with erased flash", "file", o.flashFile)
		return dev, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := dev.Flash.Load(f); err != nil {
		return nil, err
	}
	return dev, nil
}

// save persists flash contents when a flash file is set.
func (o *options) save(dev *sim.Device) error {
	if o.flashFile == "" {
		return nil
	}
	f, err := os.Create(o.flashFile)
	if err != nil {
		return err
	}
	if _, err := dev.Flash.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (o *options) openLog() error {
	if o.logFile == "" {
		return nil
	}
	f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	o.logOut = f
	pkg.SetLogOutput(f)
	return nil
}

func (o *options) closeLog() error {
	if o.logOut == nil {
		return nil
	}
	pkg.SetLogOutput(os.Stderr)
	f := o.logOut
	o.logOut = nil
	return f.Close()
}

func (o *options) startProfiling() error {
	if o.prof.IsZero() {
		return nil
	}
	if !prof.Enabled {
		pkg.LogWarn(component, "profiling flags ignored: built without the profile tag")
		return nil
	}
	s, err := prof.Start(o.prof)
	if err != nil {
		return err
	}
	o.session = s
	if addr := s.Addr(); addr != nil {
		pkg.LogInfo(component, "serving pprof", "addr", addr.String())
	}
	return nil
}

func (o *options) stopProfiling() error {
	if o.session == nil {
		return nil
	}
	s := o.session
	o.session = nil
	return s.Stop()
}

// link is the device a host command talks to: the simulator in this
// process, or a device served on the --bus FIFOs by another process.
type link struct {
	Config boot.Config

	dev  *sim.Device
	bus  *fifo.Host
	opts *options
}

// connect reaches the device named by the flags, entering its bootloader
// when it is simulated here.
func (o *options) connect(ctx context.Context) (*link, error) {
	if o.bus == "" {
		dev, err := o.device()
		if err != nil {
			return nil, err
		}
		if err := enterBootloader(ctx, dev); err != nil {
			return nil, err
		}
		return &link{Config: dev.Config, dev: dev, opts: o}, nil
	}

	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	bus, err := fifo.Dial(dialCtx, o.bus)
	if err != nil {
		return nil, err
	}
	return &link{Config: cfg, bus: bus, opts: o}, nil
}

// client returns a protocol client for the device. Remote devices get
// their write delay honored in real time.
func (l *link) client(opts ...host.Option) *host.Client {
	if l.dev != nil {
		return l.dev.Client(opts...)
	}
	return host.New(l.bus, append(opts, host.WithSleep(time.Sleep))...)
}

// exited reports on the device after an exit request.
func (l *link) exited(out io.Writer) error {
	if l.dev != nil {
		return reportRunning(out, l.dev)
	}
	fmt.Fprintln(out, "exit requested")
	return nil
}

// close persists simulated flash or hangs up the bus.
func (l *link) close() error {
	if l.dev != nil {
		return l.opts.save(l.dev)
	}
	return l.bus.Close()
}

// withLink connects to the device and runs fn on it. Simulated flash is
// saved only when fn succeeds.
func (o *options) withLink(ctx context.Context, fn func(l *link) error) error {
	l, err := o.connect(ctx)
	if err != nil {
		return err
	}
	if err := fn(l); err != nil {
		if l.bus != nil {
			l.bus.Close()
		}
		return err
	}
	return l.close()
}

// enterBootloader powers dev on with the entry trigger held.
func enterBootloader(ctx context.Context, dev *sim.Device) error {
	dev.CPU.SetEntryRequested(true)
	entered, err := dev.PowerOn(ctx)
	if err != nil {
		return err
	}
	if !entered {
		return fmt.Errorf("bootloader not entered: %w", pkg.ErrNotConnected)
	}
	return nil
}
