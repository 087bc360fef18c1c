// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/heliboot/pkg/flash"
)

var testRegion = flash.Region{Base: 0x08004000, Size: 0x2000}

func TestOpenFlashCreatesBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.cbor")

	mem, err := openFlash(path, testRegion, flash.DefaultPageSize, false)
	require.NoError(t, err)
	assert.Equal(t, testRegion, mem.Region())
	assert.Nil(t, mem.ProgrammedImage())
}

func TestOpenFlashRestoresSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.cbor")

	mem, err := flash.NewMemory(testRegion, flash.DefaultPageSize)
	require.NoError(t, err)
	p := flash.NewProgrammer(mem, nil)
	require.NoError(t, p.Erase(testRegion.Base, testRegion.Size))
	require.NoError(t, p.Write(testRegion.Base, []byte{1, 2, 3, 4}))
	require.NoError(t, mem.Save(path))

	restored, err := openFlash(path, testRegion, flash.DefaultPageSize, false)
	require.NoError(t, err)
	word, err := restored.ReadWord(testRegion.Base)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), word)

	// A different layout needs --reset
	_, err = openFlash(path, flash.Region{Base: testRegion.Base, Size: 0x4000}, flash.DefaultPageSize, false)
	assert.Error(t, err)

	blank, err := openFlash(path, testRegion, flash.DefaultPageSize, true)
	require.NoError(t, err)
	assert.Nil(t, blank.ProgrammedImage())
}

func TestEmulatedCPUExits(t *testing.T) {
	catch := func(fn func()) (exit cpuExit) {
		defer func() { exit = recover().(cpuExit) }()
		fn()
		return
	}

	jump := catch(func() { emulatedCPU{}.Jump(0x08004135) })
	assert.Equal(t, 0, jump.code)
	assert.Contains(t, jump.message, "0x08004135")

	halt := catch(func() { emulatedCPU{}.Halt(flash.ErrFault) })
	assert.Equal(t, 1, halt.code)
	assert.Contains(t, halt.message, flash.ErrFault.Error())
}
