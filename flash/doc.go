// Package flash defines the self-programming capability used by the
// bootloader and provides a host-simulated flash array.
//
// The [Programmer] interface mirrors the four primitives a microcontroller
// exposes for rewriting its own program memory: clearing the page buffer,
// staging a word, erasing a page and committing the staged page. [Reader]
// gives direct read access, which the bootloader needs to detect an erased
// application.
//
// [Memory] implements both with NOR flash semantics so that the bootloader
// core can be exercised without hardware:
//
//	mem := flash.NewMemory(8192, 64)
//	mem.ErasePage(0)
//	mem.FillWord(0, 0xC0FF)
//	mem.CommitPage(0)
//	word := flash.ReadWord(mem, 0)
package flash
