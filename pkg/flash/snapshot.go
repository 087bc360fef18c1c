// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flash

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/kelindar/bitmap"
)

// Snapshot is the persisted state of a simulated flash
type Snapshot struct {
	Base       uint32        `cbor:"1,keyasint"`
	PageSize   uint32        `cbor:"2,keyasint"`
	Data       []byte        `cbor:"3,keyasint"`
	Erased     bitmap.Bitmap `cbor:"4,keyasint,omitempty"`
	Programmed bitmap.Bitmap `cbor:"5,keyasint,omitempty"`
	SavedAt    time.Time     `cbor:"6,keyasint"`
}

// Snapshot captures the current contents
func (m *Memory) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := make([]byte, len(m.data))
	copy(data, m.data)

	return &Snapshot{
		Base:       m.base,
		PageSize:   m.pageSize,
		Data:       data,
		Erased:     cloneBitmap(m.erased),
		Programmed: cloneBitmap(m.programmed),
		SavedAt:    time.Now().UTC(),
	}
}

// FromSnapshot restores a Memory. The controller starts locked.
func FromSnapshot(s *Snapshot) (*Memory, error) {
	region := Region{Base: s.Base, Size: uint32(len(s.Data))}
	if err := region.Validate(s.PageSize); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	data := make([]byte, len(s.Data))
	copy(data, s.Data)

	return &Memory{
		base:          s.Base,
		pageSize:      s.PageSize,
		data:          data,
		locked:        true,
		erased:        cloneBitmap(s.Erased),
		programmed:    cloneBitmap(s.Programmed),
		failProgramAt: make(map[uint32]error),
	}, nil
}

// Encode encodes the snapshot as CBOR
func (s *Snapshot) Encode() ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeSnapshot decodes a CBOR snapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// Save writes the memory contents to path
func (m *Memory) Save(path string) error {
	data, err := m.Snapshot().Encode()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load restores a memory saved with Save
func Load(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return FromSnapshot(s)
}

func cloneBitmap(b bitmap.Bitmap) bitmap.Bitmap {
	return append(bitmap.Bitmap(nil), b...)
}
