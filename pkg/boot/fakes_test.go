// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/hal"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// fakeSerial serves a scripted byte stream to blocking reads and a
// channel to interrupt reads. Running out of script returns exhausted.
type fakeSerial struct {
	mu        sync.Mutex
	it        chan byte
	data      []byte
	sent      []byte
	armed     bool
	deinit    int
	exhausted error
}

func newFakeSerial() *fakeSerial {
	return &fakeSerial{
		it:        make(chan byte),
		exhausted: io.EOF,
	}
}

func (f *fakeSerial) queue(chunks ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.data = append(f.data, c...)
	}
}

func (f *fakeSerial) Sent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.sent...)
}

func (f *fakeSerial) Transmit(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p...)
	return nil
}

func (f *fakeSerial) Receive(p []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed {
		return hal.ErrBusy
	}
	if len(f.data) < len(p) {
		f.data = nil
		return f.exhausted
	}
	copy(p, f.data)
	f.data = f.data[len(p):]
	return nil
}

func (f *fakeSerial) ReceiveIT() (<-chan byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	return f.it, nil
}

func (f *fakeSerial) AbortReceiveIT() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	return nil
}

func (f *fakeSerial) DeInit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deinit++
	return nil
}

// fakeTimer ticks only when the test sends on c
type fakeTimer struct {
	c      chan time.Time
	starts int
	stops  int
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time)}
}

func (f *fakeTimer) Start() <-chan time.Time {
	f.starts++
	return f.c
}

func (f *fakeTimer) Stop() {
	f.stops++
}

type jumped struct{ entry uint32 }

type halted struct{ reason error }

// fakeCPU panics instead of leaving, so tests can recover
type fakeCPU struct{}

func (fakeCPU) Jump(entry uint32) {
	panic(jumped{entry})
}

func (fakeCPU) Halt(reason error) {
	panic(halted{reason})
}

// boot runs Boot and returns how it left
func boot(bl *Bootloader) (exit any) {
	defer func() {
		exit = recover()
	}()
	bl.Boot()
	return nil
}

const testBase = DefaultAppBase

func newTestMemory(t *testing.T) *flash.Memory {
	t.Helper()
	mem, err := flash.NewMemory(flash.Region{Base: testBase, Size: DefaultAppSize}, flash.DefaultPageSize)
	require.NoError(t, err)
	return mem
}

type harness struct {
	serial *fakeSerial
	timer  *fakeTimer
	mem    *flash.Memory
	writes []Progress
	bl     *Bootloader
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		serial: newFakeSerial(),
		timer:  newFakeTimer(),
		mem:    newTestMemory(t),
	}
	opts = append([]Option{WithProgress(func(p Progress) {
		h.writes = append(h.writes, p)
	})}, opts...)

	bl, err := New(Device{
		Serial: h.serial,
		Timer:  h.timer,
		Flash:  h.mem,
		CPU:    fakeCPU{},
	}, opts...)
	require.NoError(t, err)
	h.bl = bl
	return h
}

// answer delivers ticks one at a time and then the given discovery bytes
func (h *harness) answer(ticks int, bytes ...byte) {
	go func() {
		for i := 0; i < ticks; i++ {
			h.timer.c <- time.Now()
		}
		for _, b := range bytes {
			h.serial.it <- b
		}
	}()
}

func frame(t *testing.T, kind ymodem.Kind, seq uint8, payload []byte) []byte {
	t.Helper()
	p, err := ymodem.NewPacket(kind, seq, payload)
	require.NoError(t, err)
	return p.Encode()
}

func headerFrame(t *testing.T, size int) []byte {
	return frame(t, ymodem.KindShortData, 0, ymodem.HeaderPayload("app.bin", size))
}

func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7) ^ seed
	}
	return out
}

func eot() []byte {
	return []byte{ymodem.EOT, ymodem.EOT}
}

var testTime = time.Unix(0, 0)

const testTick = time.Millisecond
