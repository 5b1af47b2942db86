package boot

import "github.com/ardnew/softboot/flash"

// Relocator rewrites the two vector slots as words stream into the page
// buffer. The application's reset vector is replaced by a jump into the
// bootloader and moved to the tinyvector slot just below it.
type Relocator struct {
	resetAddr uint16
	tinyAddr  uint16
	bootAddr  uint16
	flashSize uint32
	oscalAddr uint16
	oscal     bool
}

// NewRelocator returns the relocation policy for cfg.
func NewRelocator(cfg *Config) Relocator {
	r := Relocator{
		resetAddr: cfg.ResetVectorAddress(),
		tinyAddr:  cfg.TinyvectorAddress(),
		bootAddr:  cfg.BootloaderAddress,
		flashSize: cfg.FlashSize,
	}
	if addr, ok := cfg.OscalAddress(); ok && cfg.OscalRestore == OscalRestoreStored {
		r.oscalAddr = addr
		r.oscal = true
	}
	return r
}

// EntryJump returns the word placed in the reset vector slot.
func (r Relocator) EntryJump() uint16 {
	return EncodeRelativeJump(r.resetAddr, r.bootAddr)
}

// Rewrite returns the word to stage at addr in place of word. oscal is the
// live oscillator calibration, written into the calibration slot when the
// stored restore strategy is configured.
func (r Relocator) Rewrite(s *Session, addr, word uint16, oscal uint8) uint16 {
	switch {
	case addr == r.resetAddr:
		s.saveResetVector(word)
		return r.EntryJump()
	case addr == r.tinyAddr:
		return r.relocatedVector(s)
	case r.oscal && addr == r.oscalAddr:
		return uint16(oscal)
	}
	return word
}

// relocatedVector re-encodes the saved reset vector for the tinyvector
// slot and consumes it. Anything that is not a relative jump is kept as
// is, so an erased reset vector keeps the application marked absent.
func (r Relocator) relocatedVector(s *Session) uint16 {
	if !s.VectorSaved {
		return flash.ErasedWord
	}
	s.VectorSaved = false
	return RelocateRelativeJump(s.SavedResetVector, r.resetAddr, r.tinyAddr, r.flashSize)
}
