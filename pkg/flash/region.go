// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flash

import "fmt"

// Region is the application image area
type Region struct {
	Base uint32
	Size uint32
}

// End returns the first address past the region
func (r Region) End() uint32 {
	return r.Base + r.Size
}

// Contains reports whether [addr, addr+n) lies inside the region
func (r Region) Contains(addr uint32, n int) bool {
	return addr >= r.Base && uint64(addr)+uint64(n) <= uint64(r.End())
}

// Validate checks the region against the erase page size
func (r Region) Validate(pageSize uint32) error {
	if r.Size == 0 {
		return fmt.Errorf("region size is zero")
	}
	if pageSize == 0 {
		return fmt.Errorf("page size is zero")
	}
	if r.Base%pageSize != 0 {
		return fmt.Errorf("region base 0x%08X is not aligned to the %d byte page size", r.Base, pageSize)
	}
	if r.Size%pageSize != 0 {
		return fmt.Errorf("region size %d is not a multiple of the %d byte page size", r.Size, pageSize)
	}
	if uint64(r.Base)+uint64(r.Size) > 1<<32 {
		return fmt.Errorf("region 0x%08X+%d overflows the address space", r.Base, r.Size)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("0x%08X-0x%08X (%d bytes)", r.Base, r.End(), r.Size)
}
