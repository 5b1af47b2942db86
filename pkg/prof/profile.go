package prof

import "errors"

// Profiling errors.
var (
	// ErrSessionActive indicates a profiling session is already running.
	ErrSessionActive = errors.New("profiling session already active")

	// ErrInvalidProfile indicates an invalid or unsupported profile type.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile represents a pprof profile type.
type Profile string

// Profile type constants.
const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// String returns the string representation of the profile type.
func (p Profile) String() string {
	return string(p)
}

// Options selects what a session records. Empty paths are skipped.
type Options struct {
	CPU       string // CPU profile, sampled for the whole session
	Heap      string // heap snapshot at Stop
	Goroutine string // goroutine snapshot at Stop
	Block     string // blocking events during the session
	Mutex     string // mutex contention during the session
	Listen    string // address serving /debug/pprof/
}

// IsZero reports whether o requests nothing.
func (o Options) IsZero() bool {
	return o == Options{}
}

// snapshot is a profile written at Stop.
type snapshot struct {
	profile Profile
	path    string
}

// snapshots returns the profiles written at Stop, in order.
func (o Options) snapshots() []snapshot {
	var out []snapshot
	for _, s := range []snapshot{
		{ProfileHeap, o.Heap},
		{ProfileGoroutine, o.Goroutine},
		{ProfileBlock, o.Block},
		{ProfileMutex, o.Mutex},
	} {
		if s.path != "" {
			out = append(out, s)
		}
	}
	return out
}
