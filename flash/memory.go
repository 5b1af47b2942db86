package flash

import (
	"fmt"
	"io"
	"sync"

	"github.com/ardnew/softboot/pkg"
)

// OpKind identifies a flash operation recorded by Memory.
type OpKind uint8

// Flash operation kinds.
const (
	OpClear OpKind = iota
	OpErase
	OpCommit
)

// String returns a human-readable operation name.
func (k OpKind) String() string {
	switch k {
	case OpClear:
		return "clear"
	case OpErase:
		return "erase"
	case OpCommit:
		return "commit"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is one page-level operation applied to Memory.
type Op struct {
	Kind OpKind
	Page uint16 // Page base address (zero for OpClear)
}

// Memory implements ReadWriter over an in-memory array with the write
// semantics of self-programmable NOR flash: erasing sets every bit of a
// page, committing can only clear bits, and the page buffer reads back as
// all ones until a word is staged.
type Memory struct {
	data     []byte
	pageSize uint16
	buffer   []uint16
	ops      []Op
	onCommit func(page uint16)
	mutex    sync.RWMutex
}

// NewMemory creates an erased flash array of size bytes divided into pages
// of pageSize bytes.
func NewMemory(size int, pageSize uint16) *Memory {
	m := &Memory{
		data:     make([]byte, size),
		pageSize: pageSize,
		buffer:   make([]uint16, pageSize/2),
	}
	for i := range m.data {
		m.data[i] = Erased
	}
	m.clearBuffer()
	return m
}

// Size returns the flash size in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// PageSize returns the page size in bytes.
func (m *Memory) PageSize() uint16 {
	return m.pageSize
}

// SetCommitHook registers fn to be called after every page commit.
// Pass nil to remove the hook.
func (m *Memory) SetCommitHook(fn func(page uint16)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onCommit = fn
}

func (m *Memory) pageBase(addr uint16) uint16 {
	return addr &^ (m.pageSize - 1)
}

func (m *Memory) inRange(addr uint16) bool {
	return int(addr) < len(m.data)
}

func (m *Memory) clearBuffer() {
	for i := range m.buffer {
		m.buffer[i] = ErasedWord
	}
}

// ClearBuffer discards every staged word.
func (m *Memory) ClearBuffer() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.clearBuffer()
	m.ops = append(m.ops, Op{Kind: OpClear})
}

// FillWord stages word in the buffer slot for addr. Only the offset of
// addr within its page selects the slot.
func (m *Memory) FillWord(addr uint16, word uint16) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	slot := (addr & (m.pageSize - 1)) / 2
	// A buffer slot can be loaded once per clear; later loads only clear bits.
	m.buffer[slot] &= word
}

// ErasePage erases the page containing addr.
func (m *Memory) ErasePage(addr uint16) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.inRange(addr) {
		pkg.LogWarn(pkg.ComponentFlash, "erase out of range", "addr", addr)
		return
	}
	base := m.pageBase(addr)
	for i := uint16(0); i < m.pageSize; i++ {
		m.data[base+i] = Erased
	}
	m.ops = append(m.ops, Op{Kind: OpErase, Page: base})
}

// CommitPage programs the staged buffer into the page containing addr and
// resets the buffer.
func (m *Memory) CommitPage(addr uint16) {
	m.mutex.Lock()
	if !m.inRange(addr) {
		m.mutex.Unlock()
		pkg.LogWarn(pkg.ComponentFlash, "commit out of range", "addr", addr)
		return
	}
	base := m.pageBase(addr)
	for i, w := range m.buffer {
		off := base + uint16(i)*2
		m.data[off] &= byte(w)
		m.data[off+1] &= byte(w >> 8)
	}
	m.clearBuffer()
	m.ops = append(m.ops, Op{Kind: OpCommit, Page: base})
	hook := m.onCommit
	m.mutex.Unlock()

	if hook != nil {
		hook(base)
	}
}

// ReadByte returns the flash byte at addr, or Erased beyond the array.
func (m *Memory) ReadByte(addr uint16) byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if !m.inRange(addr) {
		return Erased
	}
	return m.data[addr]
}

// ReadAt copies flash contents starting at off into p.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Ops returns a copy of the page-level operation log.
func (m *Memory) Ops() []Op {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

// ResetOps clears the operation log.
func (m *Memory) ResetOps() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ops = m.ops[:0]
}

// Load replaces the flash contents with data read from r. Bytes beyond the
// end of r read as erased.
func (m *Memory) Load(r io.Reader) error {
	buf := make([]byte, len(m.data))
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("load flash: %w", err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = Erased
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	copy(m.data, buf)
	return nil
}

// WriteTo writes the full flash contents to w.
func (m *Memory) WriteTo(w io.Writer) (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	n, err := w.Write(m.data)
	return int64(n), err
}
