// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flash

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/kelindar/bitmap"
)

// ErasedValue is the byte value of erased NOR flash
const ErasedValue = 0xFF

// DefaultPageSize matches the 1 KiB pages of medium-density STM32F1 parts
const DefaultPageSize = 1024

// Memory simulates a NOR flash controller. It implements hal.Flash with
// the usual constraints: operations need the controller unlocked, erases
// work on whole pages and a word can only be programmed while erased.
type Memory struct {
	mu sync.Mutex

	base     uint32
	pageSize uint32
	data     []byte
	locked   bool

	erased     bitmap.Bitmap // pages that have been erased
	programmed bitmap.Bitmap // pages holding programmed words

	eraseCount   int
	programCount int

	failErase     error
	failProgramAt map[uint32]error
}

// NewMemory creates a blank (fully erased) flash covering region
func NewMemory(region Region, pageSize uint32) (*Memory, error) {
	if err := region.Validate(pageSize); err != nil {
		return nil, err
	}

	data := make([]byte, region.Size)
	for i := range data {
		data[i] = ErasedValue
	}

	return &Memory{
		base:          region.Base,
		pageSize:      pageSize,
		data:          data,
		locked:        true,
		failProgramAt: make(map[uint32]error),
	}, nil
}

// Region returns the simulated address range
func (m *Memory) Region() Region {
	return Region{Base: m.base, Size: uint32(len(m.data))}
}

// PageSize returns the erase granularity
func (m *Memory) PageSize() uint32 {
	return m.pageSize
}

// Unlock enables erase and program operations
func (m *Memory) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = false
	return nil
}

// Lock disables erase and program operations
func (m *Memory) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = true
	return nil
}

// Locked reports whether the controller is locked
func (m *Memory) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// ErasePages erases count pages starting at addr
func (m *Memory) ErasePages(addr uint32, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked {
		return ErrLocked
	}
	if count < 0 || addr%m.pageSize != 0 || !m.contains(addr, count*int(m.pageSize)) {
		return fmt.Errorf("%w: erase 0x%08X x %d pages", ErrOutOfRange, addr, count)
	}
	if m.failErase != nil {
		return m.failErase
	}

	first := (addr - m.base) / m.pageSize
	for i := uint32(0); i < uint32(count); i++ {
		page := first + i
		start := page * m.pageSize
		for j := start; j < start+m.pageSize; j++ {
			m.data[j] = ErasedValue
		}
		m.erased.Set(page)
		m.programmed.Remove(page)
		m.eraseCount++
	}
	return nil
}

// ProgramWord writes a little-endian word at addr
func (m *Memory) ProgramWord(addr uint32, word uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked {
		return ErrLocked
	}
	if addr%WordSize != 0 || !m.contains(addr, WordSize) {
		return fmt.Errorf("%w: program 0x%08X", ErrOutOfRange, addr)
	}
	if err, ok := m.failProgramAt[addr]; ok {
		return err
	}

	off := addr - m.base
	if binary.LittleEndian.Uint32(m.data[off:]) != 0xFFFFFFFF {
		return fmt.Errorf("%w: 0x%08X", ErrNotErased, addr)
	}

	binary.LittleEndian.PutUint32(m.data[off:], word)
	m.programmed.Set(off / m.pageSize)
	m.programCount++
	return nil
}

// ReadWord reads the little-endian word at addr
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.contains(addr, WordSize) {
		return 0, fmt.Errorf("%w: read 0x%08X", ErrOutOfRange, addr)
	}
	return binary.LittleEndian.Uint32(m.data[addr-m.base:]), nil
}

// Read copies n bytes starting at addr
func (m *Memory) Read(addr uint32, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.contains(addr, n) {
		return nil, fmt.Errorf("%w: read 0x%08X+%d", ErrOutOfRange, addr, n)
	}
	out := make([]byte, n)
	copy(out, m.data[addr-m.base:])
	return out, nil
}

// ProgrammedImage returns the flash contents from the base up to the end
// of the last page holding programmed words
func (m *Memory) ProgrammedImage() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.programmed.Max()
	if !ok {
		return nil
	}
	end := (last + 1) * m.pageSize
	out := make([]byte, end)
	copy(out, m.data[:end])
	return out
}

// PageCounts returns the number of erased and programmed pages
func (m *Memory) PageCounts() (erased, programmed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erased.Count(), m.programmed.Count()
}

// OpCounts returns the number of page erases and word programs performed
func (m *Memory) OpCounts() (erases, programs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eraseCount, m.programCount
}

// FailErase makes every following erase report err (nil clears it)
func (m *Memory) FailErase(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErase = err
}

// FailProgramAt makes programming the word at addr report err
func (m *Memory) FailProgramAt(addr uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failProgramAt, addr)
		return
	}
	m.failProgramAt[addr] = err
}

func (m *Memory) contains(addr uint32, n int) bool {
	return Region{Base: m.base, Size: uint32(len(m.data))}.Contains(addr, n)
}
