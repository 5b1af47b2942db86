package flash

// Erased is the value every byte of a freshly erased page reads as.
const Erased = 0xFF

// ErasedWord is the value every word of a freshly erased page reads as.
const ErasedWord = 0xFFFF

// Programmer defines the self-programming primitives of program memory.
//
// A Programmer stages one page at a time in a hardware page buffer.
// FillWord only writes the buffer; CommitPage moves the buffer into flash.
// None of the operations report failure: a commit that has started is
// assumed to complete.
type Programmer interface {
	// ClearBuffer discards every word staged in the page buffer.
	ClearBuffer()

	// FillWord stages word at the buffer slot addressed by addr.
	// Flash contents are not touched.
	FillWord(addr uint16, word uint16)

	// ErasePage erases the page containing addr.
	ErasePage(addr uint16)

	// CommitPage writes the page buffer into the page containing addr.
	// The call blocks for the hardware programming time.
	CommitPage(addr uint16)
}

// Reader reads program memory directly.
type Reader interface {
	// ReadByte returns the flash byte at addr.
	ReadByte(addr uint16) byte
}

// ReadWriter combines the programming primitives with direct reads.
type ReadWriter interface {
	Programmer
	Reader
}

// ReadWord returns the little-endian word at addr.
func ReadWord(r Reader, addr uint16) uint16 {
	return uint16(r.ReadByte(addr)) | uint16(r.ReadByte(addr+1))<<8
}
