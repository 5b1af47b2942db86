//go:build profile

package prof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"
	"time"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

// shutdownTimeout bounds the HTTP server shutdown in Stop.
const shutdownTimeout = time.Second

var (
	// activeMutex protects active.
	activeMutex sync.Mutex

	// active is the running session, if any.
	active *Session
)

// Session is a running profiling session.
type Session struct {
	opts    Options
	cpuFile *os.File
	server  *http.Server
	addr    net.Addr
	stopped bool
}

// Start begins a session recording what opts selects.
func Start(opts Options) (*Session, error) {
	activeMutex.Lock()
	defer activeMutex.Unlock()

	if active != nil {
		return nil, ErrSessionActive
	}

	s := &Session{opts: opts}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, err
		}
		if err := rpprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		s.cpuFile = f
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if opts.Listen != "" {
		if err := s.serve(opts.Listen); err != nil {
			s.stop()
			return nil, err
		}
	}

	active = s
	return s, nil
}

// serve exposes the pprof handlers on addr.
func (s *Session) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pprof listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.addr = ln.Addr()
	go s.server.Serve(ln)
	return nil
}

// Addr returns the address serving pprof handlers, or nil.
func (s *Session) Addr() net.Addr {
	return s.addr
}

// Stop ends the session and writes the snapshot profiles. Calling it
// again does nothing.
func (s *Session) Stop() error {
	activeMutex.Lock()
	defer activeMutex.Unlock()

	if s.stopped {
		return nil
	}
	err := s.stop()
	for _, snap := range s.opts.snapshots() {
		err = errors.Join(err, writeFile(snap.profile, snap.path))
	}
	if s.opts.Block != "" {
		runtime.SetBlockProfileRate(0)
	}
	if s.opts.Mutex != "" {
		runtime.SetMutexProfileFraction(0)
	}
	if active == s {
		active = nil
	}
	return err
}

// stop releases the CPU profile and the HTTP server.
func (s *Session) stop() error {
	s.stopped = true
	var err error
	if s.cpuFile != nil {
		rpprof.StopCPUProfile()
		err = s.cpuFile.Close()
		s.cpuFile = nil
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, s.server.Shutdown(ctx))
		s.server = nil
	}
	return err
}

func writeFile(profile Profile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(profile, f, 0); err != nil {
		f.Close()
		return fmt.Errorf("%s profile: %w", profile, err)
	}
	return f.Close()
}

// WriteTo writes a snapshot profile to w. Debug level 0 produces binary
// protobuf output for go tool pprof; debug level 1 produces text.
// [ProfileCPU] is not a snapshot and returns [ErrInvalidProfile].
func WriteTo(profile Profile, w io.Writer, debug int) error {
	if profile == ProfileCPU {
		return ErrInvalidProfile
	}
	p := rpprof.Lookup(string(profile))
	if p == nil {
		return ErrInvalidProfile
	}
	return p.WriteTo(w, debug)
}
