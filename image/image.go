package image

import (
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"

	"github.com/ardnew/softboot/boot"
	"github.com/ardnew/softboot/flash"
	"github.com/ardnew/softboot/pkg"
)

// Image is an application image as a flat byte array starting at
// address 0. Bytes not covered by the source read as erased.
type Image struct {
	data []byte
	used []bool
}

// Page is one page of image data addressed for a TransferPage request.
type Page struct {
	Address uint16
	Data    []byte
}

// RangeError describes image data outside the writable application area.
type RangeError struct {
	Address uint32
	Limit   uint32
	Err     error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("image data at 0x%04X beyond limit 0x%04X", e.Address, e.Limit)
}

// Unwrap returns the sentinel error classifying the failure.
func (e *RangeError) Unwrap() error {
	return e.Err
}

// FromBinary creates an image from a raw binary starting at address 0.
func FromBinary(data []byte) *Image {
	img := &Image{}
	img.put(0, data)
	return img
}

// LoadHex parses an Intel HEX stream.
func LoadHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse intel hex: %w", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, pkg.ErrImageEmpty
	}

	img := &Image{}
	for _, seg := range segments {
		end := uint64(seg.Address) + uint64(len(seg.Data))
		if end > 1<<16 {
			return nil, &RangeError{Address: uint32(end - 1), Limit: 1 << 16, Err: pkg.ErrImageOutOfRange}
		}
		img.put(uint16(seg.Address), seg.Data)
	}
	pkg.LogDebug(pkg.ComponentImage, "hex image loaded",
		"segments", len(segments),
		"size", img.Size())
	return img, nil
}

// LoadHexFile parses the Intel HEX file at path.
func LoadHexFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadHex(f)
}

func (img *Image) put(addr uint16, data []byte) {
	end := int(addr) + len(data)
	for len(img.data) < end {
		img.data = append(img.data, flash.Erased)
		img.used = append(img.used, false)
	}
	copy(img.data[addr:], data)
	for i := int(addr); i < end; i++ {
		img.used[i] = true
	}
}

// Size returns the address one past the last byte of image data.
func (img *Image) Size() int {
	return len(img.data)
}

// Bytes returns the flat image contents.
func (img *Image) Bytes() []byte {
	return img.data
}

// Word returns the little-endian word at addr.
func (img *Image) Word(addr uint16) uint16 {
	lo, hi := byte(flash.Erased), byte(flash.Erased)
	if int(addr) < len(img.data) {
		lo = img.data[addr]
	}
	if int(addr)+1 < len(img.data) {
		hi = img.data[addr+1]
	}
	return uint16(lo) | uint16(hi)<<8
}

// Check verifies that the image fits the writable application area of cfg.
func (img *Image) Check(cfg *boot.Config) error {
	limit := uint32(cfg.Info().FlashSize)
	if uint32(len(img.data)) <= limit {
		return nil
	}
	for i := len(img.data) - 1; i >= int(limit); i-- {
		if img.used[i] {
			err := pkg.ErrImageTooLarge
			if i >= int(cfg.BootloaderAddress) {
				err = pkg.ErrImageOutOfRange
			}
			return &RangeError{Address: uint32(i), Limit: limit, Err: err}
		}
	}
	return nil
}

// Pages splits the image into the pages a host transfers for cfg. Pages
// without image data are skipped, except the last application page: it
// holds the tinyvector and must always be written.
func (img *Image) Pages(cfg *boot.Config) ([]Page, error) {
	if err := img.Check(cfg); err != nil {
		return nil, err
	}
	size := int(cfg.PageSize)
	lastPage := int(cfg.BootloaderAddress) - size

	var pages []Page
	for base := 0; base <= lastPage; base += size {
		if base != lastPage && !img.touched(base, size) {
			continue
		}
		p := Page{Address: uint16(base), Data: make([]byte, size)}
		for i := range p.Data {
			p.Data[i] = flash.Erased
			if base+i < len(img.data) {
				p.Data[i] = img.data[base+i]
			}
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func (img *Image) touched(base, size int) bool {
	for i := base; i < base+size && i < len(img.used); i++ {
		if img.used[i] {
			return true
		}
	}
	return false
}
