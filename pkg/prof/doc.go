// Package prof records runtime profiles of the bootloader tools.
//
// The package wraps [runtime/pprof] and is conditionally compiled using the
// "profile" build tag:
//
//	go build -tags profile ./cmd/softboot-sim
//	go test -tags profile ./pkg/prof
//
// Without the tag [Start] returns an inert [Session] and [Enabled] is
// false, so commands keep their profiling flags at no cost.
//
// # Sessions
//
// A session covers one command run. CPU samples stream to a file from
// [Start] until [Session.Stop], which then writes the requested snapshot
// profiles:
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Heap: "heap.prof"})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Only one session may run at a time; a second [Start] returns
// [ErrSessionActive].
//
// # HTTP Profiling
//
// Setting [Options.Listen] serves the [net/http/pprof] handlers at
// /debug/pprof/ on that address for the life of the session, which suits
// a long-running bus server.
//
// # Block and Mutex Profiling
//
// Requesting a block or mutex profile enables sampling for the session and
// turns it off again in [Session.Stop].
package prof
