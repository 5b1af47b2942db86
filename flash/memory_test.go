package flash

import (
	"bytes"
	"testing"
)

func TestNewMemoryErased(t *testing.T) {
	m := NewMemory(512, 64)
	for addr := uint16(0); addr < 512; addr++ {
		if got := m.ReadByte(addr); got != Erased {
			t.Fatalf("ReadByte(0x%04X) = 0x%02X, want 0x%02X", addr, got, Erased)
		}
	}
	if m.Size() != 512 {
		t.Errorf("Size() = %d, want 512", m.Size())
	}
	if m.PageSize() != 64 {
		t.Errorf("PageSize() = %d, want 64", m.PageSize())
	}
}

func TestFillDoesNotTouchFlash(t *testing.T) {
	m := NewMemory(256, 64)
	m.FillWord(0, 0x1234)
	if got := ReadWord(m, 0); got != ErasedWord {
		t.Errorf("ReadWord(0) = 0x%04X before commit, want 0x%04X", got, ErasedWord)
	}
}

func TestCommitPage(t *testing.T) {
	m := NewMemory(256, 64)
	for i := uint16(0); i < 32; i++ {
		m.FillWord(64+i*2, 0x0100+i)
	}
	m.CommitPage(64 + 62)

	for i := uint16(0); i < 32; i++ {
		if got := ReadWord(m, 64+i*2); got != 0x0100+i {
			t.Errorf("ReadWord(0x%04X) = 0x%04X, want 0x%04X", 64+i*2, got, 0x0100+i)
		}
	}
	if got := ReadWord(m, 0); got != ErasedWord {
		t.Errorf("neighbouring page modified: ReadWord(0) = 0x%04X", got)
	}
}

func TestCommitOnlyClearsBits(t *testing.T) {
	m := NewMemory(128, 64)
	m.FillWord(0, 0xF0F0)
	m.CommitPage(0)
	m.FillWord(0, 0x0FFF)
	m.CommitPage(0)
	if got := ReadWord(m, 0); got != 0x00F0 {
		t.Errorf("ReadWord(0) = 0x%04X, want 0x00F0", got)
	}

	m.ErasePage(0)
	if got := ReadWord(m, 0); got != ErasedWord {
		t.Errorf("ReadWord(0) after erase = 0x%04X, want 0x%04X", got, ErasedWord)
	}
}

func TestClearBuffer(t *testing.T) {
	m := NewMemory(128, 64)
	m.FillWord(2, 0x0000)
	m.ClearBuffer()
	m.FillWord(4, 0xABCD)
	m.CommitPage(0)

	if got := ReadWord(m, 2); got != ErasedWord {
		t.Errorf("stale word survived ClearBuffer: ReadWord(2) = 0x%04X", got)
	}
	if got := ReadWord(m, 4); got != 0xABCD {
		t.Errorf("ReadWord(4) = 0x%04X, want 0xABCD", got)
	}
}

func TestCommitResetsBuffer(t *testing.T) {
	m := NewMemory(128, 64)
	m.FillWord(0, 0x0000)
	m.CommitPage(0)
	m.CommitPage(64)
	if got := ReadWord(m, 64); got != ErasedWord {
		t.Errorf("ReadWord(64) = 0x%04X, want 0x%04X", got, ErasedWord)
	}
}

func TestOpsLog(t *testing.T) {
	m := NewMemory(256, 64)
	m.ErasePage(130)
	m.ClearBuffer()
	m.CommitPage(10)

	want := []Op{
		{Kind: OpErase, Page: 128},
		{Kind: OpClear},
		{Kind: OpCommit, Page: 0},
	}
	got := m.Ops()
	if len(got) != len(want) {
		t.Fatalf("Ops() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Ops()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	m.ResetOps()
	if len(m.Ops()) != 0 {
		t.Error("ResetOps() did not clear the log")
	}
}

func TestOutOfRange(t *testing.T) {
	m := NewMemory(128, 64)
	m.ErasePage(4096)
	m.CommitPage(4096)
	if got := m.ReadByte(4096); got != Erased {
		t.Errorf("ReadByte(4096) = 0x%02X, want 0x%02X", got, Erased)
	}
	if len(m.Ops()) != 0 {
		t.Errorf("out-of-range operations logged: %v", m.Ops())
	}
}

func TestCommitHook(t *testing.T) {
	m := NewMemory(256, 64)
	var pages []uint16
	m.SetCommitHook(func(page uint16) { pages = append(pages, page) })
	m.CommitPage(70)
	m.CommitPage(200)
	if len(pages) != 2 || pages[0] != 64 || pages[1] != 192 {
		t.Errorf("commit hook pages = %v, want [64 192]", pages)
	}
}

func TestLoadAndWriteTo(t *testing.T) {
	m := NewMemory(128, 64)
	if err := m.Load(bytes.NewReader([]byte{0x01, 0x02, 0x03})); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := m.ReadByte(2); got != 0x03 {
		t.Errorf("ReadByte(2) = 0x%02X, want 0x03", got)
	}
	if got := m.ReadByte(3); got != Erased {
		t.Errorf("ReadByte(3) = 0x%02X, want 0x%02X", got, Erased)
	}

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if n != 128 || buf.Len() != 128 {
		t.Errorf("WriteTo() wrote %d bytes, want 128", n)
	}

	p := make([]byte, 4)
	if _, err := m.ReadAt(p, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(p, []byte{0x01, 0x02, 0x03, 0xFF}) {
		t.Errorf("ReadAt() = % X", p)
	}
}

func TestOpKindString(t *testing.T) {
	tests := []struct {
		kind OpKind
		want string
	}{
		{OpClear, "clear"},
		{OpErase, "erase"},
		{OpCommit, "commit"},
		{OpKind(9), "op(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("OpKind.String() = %v, want %v", got, tt.want)
		}
	}
}
