// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	"fmt"

	"github.com/Thermoquad/heliboot/pkg/hal"
)

// EntryVectorOffset is the offset of the reset handler address in the
// image's vector table
const EntryVectorOffset = 4

// WordReader reads 32-bit words from flash
type WordReader interface {
	ReadWord(addr uint32) (uint32, error)
}

// Handoff reads the entry vector at base+4 and jumps to it. It only
// returns if the vector cannot be read; a Jump that returns panics.
func Handoff(mem WordReader, base uint32, cpu hal.CPU) error {
	entry, err := mem.ReadWord(base + EntryVectorOffset)
	if err != nil {
		return fmt.Errorf("read entry vector at 0x%08X: %w", base+EntryVectorOffset, err)
	}
	cpu.Jump(entry)
	panic(fmt.Sprintf("boot: jump to 0x%08X returned", entry))
}
