package boot

// Relative jump encoding for the AVR RJMP instruction.
//
// RJMP k is the 16-bit word 1100 kkkk kkkk kkkk. It sets PC to PC + k + 1,
// where PC and k count words and k is a signed 12-bit offset. On parts
// with at most 8 KiB of flash the program counter is 12 bits wide and
// wraps, so RJMP reaches every word. Larger parts only reach ±2K words.
//
// This encoding is specific to the AVR instruction set. Targets with a
// different architecture need their own jump encoder.
const (
	rjmpOpcode     = 0xC000
	rjmpOpcodeMask = 0xF000
	rjmpOffsetMask = 0x0FFF
	rjmpSignBit    = 0x0800

	// wrapFlashSize is the largest flash whose program counter wraps
	// within RJMP range.
	wrapFlashSize = 8192
)

// EncodeRelativeJump returns the RJMP instruction that, placed at byte
// address from, transfers control to byte address to.
func EncodeRelativeJump(from, to uint16) uint16 {
	k := int(to/2) - int(from/2) - 1
	return rjmpOpcode | uint16(k)&rjmpOffsetMask
}

// IsRelativeJump reports whether word is an RJMP instruction.
func IsRelativeJump(word uint16) bool {
	return word&rjmpOpcodeMask == rjmpOpcode
}

// DecodeRelativeJump returns the byte address reached by the RJMP word
// placed at byte address at, on a part with flashSize bytes of program
// memory.
func DecodeRelativeJump(at, word uint16, flashSize uint32) uint16 {
	k := int(word & rjmpOffsetMask)
	if k&rjmpSignBit != 0 {
		k -= rjmpOffsetMask + 1
	}
	target := int(at/2) + k + 1
	if words := int(flashSize / 2); words > 0 {
		target %= words
		if target < 0 {
			target += words
		}
	}
	return uint16(target * 2)
}

// jumpReachable reports whether an RJMP at from can reach to.
func jumpReachable(from, to uint16, flashSize uint32) bool {
	if flashSize <= wrapFlashSize {
		return true
	}
	k := int(to/2) - int(from/2) - 1
	return k >= -int(rjmpSignBit) && k < int(rjmpSignBit)
}

// RelocateRelativeJump re-encodes an RJMP that sat at byte address from so
// that, placed at byte address to, it reaches the same target. Words that
// are not RJMP instructions are returned unchanged.
func RelocateRelativeJump(word, from, to uint16, flashSize uint32) uint16 {
	if !IsRelativeJump(word) {
		return word
	}
	return EncodeRelativeJump(to, DecodeRelativeJump(from, word, flashSize))
}
