//go:build !profile

package prof

import (
	"io"
	"net"
)

// Enabled reports whether profiling is compiled in.
const Enabled = false

// Session is an inert profiling session.
type Session struct{}

// Start returns an inert session when built without the "profile" tag.
func Start(_ Options) (*Session, error) {
	return &Session{}, nil
}

// Addr always returns nil when built without the "profile" tag.
func (s *Session) Addr() net.Addr {
	return nil
}

// Stop is a no-op when built without the "profile" tag.
func (s *Session) Stop() error {
	return nil
}

// WriteTo is a no-op when built without the "profile" tag.
func WriteTo(_ Profile, _ io.Writer, _ int) error {
	return nil
}
