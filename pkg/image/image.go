// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package image loads application firmware for transfer to the bootloader.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"golang.org/x/crypto/blake2b"

	"github.com/Thermoquad/heliboot/pkg/flash"
)

var (
	ErrEmpty          = errors.New("image is empty")
	ErrTooLarge       = errors.New("image does not fit the application region")
	ErrWrongBase      = errors.New("image is not linked for the application region")
	ErrNoVectorTable  = errors.New("image too short for a vector table")
	ErrEntryOutOfSpan = errors.New("entry vector points outside the image")
)

// Image is a flat firmware image starting at Base
type Image struct {
	Name string
	Base uint32
	Data []byte
}

// Load reads a firmware file. Intel HEX files (.hex, .ihex) carry their
// own load address; raw binaries are placed at base.
func Load(path string, base uint32) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return ParseHex(f, name)
	default:
		return ReadBinary(f, name, base)
	}
}

// ReadBinary reads a raw binary image
func ReadBinary(r io.Reader, name string, base uint32) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return &Image{Name: name, Base: base, Data: data}, nil
}

// ParseHex reads an Intel HEX file and flattens its data segments into
// one image. Gaps between segments are filled with the erased value.
func ParseHex(r io.Reader, name string) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, ErrEmpty
	}

	start, end := segments[0].Address, uint32(0)
	for _, seg := range segments {
		if seg.Address < start {
			start = seg.Address
		}
		if e := seg.Address + uint32(len(seg.Data)); e > end {
			end = e
		}
	}

	data := make([]byte, end-start)
	for i := range data {
		data[i] = flash.ErasedValue
	}
	for _, seg := range segments {
		copy(data[seg.Address-start:], seg.Data)
	}

	return &Image{Name: name, Base: start, Data: data}, nil
}

// Size returns the image length in bytes
func (img *Image) Size() int {
	return len(img.Data)
}

// Fit checks that the image is linked for region and fits inside it
func (img *Image) Fit(region flash.Region) error {
	if img.Base != region.Base {
		return fmt.Errorf("%w: starts at 0x%08X, region %s", ErrWrongBase, img.Base, region)
	}
	if !region.Contains(img.Base, len(img.Data)) {
		return fmt.Errorf("%w: %d bytes, region %s", ErrTooLarge, len(img.Data), region)
	}
	return nil
}

// Vectors returns the initial stack pointer and the reset handler address
// from the image's vector table
func (img *Image) Vectors() (sp, entry uint32, err error) {
	if len(img.Data) < 8 {
		return 0, 0, ErrNoVectorTable
	}
	return binary.LittleEndian.Uint32(img.Data[0:]), binary.LittleEndian.Uint32(img.Data[4:]), nil
}

// CheckEntry verifies that the reset handler lies inside the image
func (img *Image) CheckEntry() error {
	_, entry, err := img.Vectors()
	if err != nil {
		return err
	}
	// Thumb addresses have bit 0 set
	addr := entry &^ 1
	if addr < img.Base || addr >= img.Base+uint32(len(img.Data)) {
		return fmt.Errorf("%w: 0x%08X", ErrEntryOutOfSpan, entry)
	}
	return nil
}

// Digest returns the BLAKE2b-256 hash of data
func Digest(data []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(data)
}

// Digest returns the BLAKE2b-256 hash of the image
func (img *Image) Digest() [blake2b.Size256]byte {
	return Digest(img.Data)
}
