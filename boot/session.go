package boot

// Session holds the mutable state of one bootloader run. The scheduler
// owns it; the dispatcher and the page accumulator update it while the
// transport driver is being polled.
type Session struct {
	// Command is the slot read and reset once per scheduler tick.
	Command Command

	// Address is the word-aligned flash cursor used by page transfers and
	// by the application eraser.
	Address uint16

	// Idle counts full scheduler ticks since the last control request.
	Idle uint32

	// SavedResetVector holds the application's reset vector while its
	// slot carries the jump into the bootloader.
	SavedResetVector uint16

	// VectorSaved is set when the reset vector slot is written and cleared
	// when the tinyvector slot consumes SavedResetVector.
	VectorSaved bool
}

func (s *Session) saveResetVector(word uint16) {
	s.SavedResetVector = word
	s.VectorSaved = true
}
