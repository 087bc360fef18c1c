// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"io"
	"sync"
	"time"
)

// rxBufferSize covers several long packets of read-ahead
const rxBufferSize = 4096

// StreamSerial implements Serial on top of any byte stream: a serial
// port, a WebSocket bridge or an in-process pipe. A single reader
// goroutine feeds a buffered channel that both the blocking and the
// interrupt-style receive paths consume, so no byte is lost when
// switching between them. The channel is closed when the reader stops.
type StreamSerial struct {
	rw io.ReadWriter

	rx   chan byte
	done chan struct{} // closed by DeInit

	mu      sync.Mutex
	err     error
	armed   bool
	closed  bool
	closeMu sync.Once
}

// NewStreamSerial wraps rw and starts the reader goroutine
func NewStreamSerial(rw io.ReadWriter) *StreamSerial {
	s := &StreamSerial{
		rw:   rw,
		rx:   make(chan byte, rxBufferSize),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *StreamSerial) pump() {
	defer close(s.rx)

	buf := make([]byte, 256)
	for {
		n, err := s.rw.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case s.rx <- buf[i]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
	}
}

// Err returns the error that stopped the reader, if any
func (s *StreamSerial) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.err
}

// Transmit writes all of p
func (s *StreamSerial) Transmit(p []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	for len(p) > 0 {
		n, err := s.rw.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Receive fills p, waiting at most timeout for the whole block
func (s *StreamSerial) Receive(p []byte, timeout time.Duration) error {
	s.mu.Lock()
	armed, closed := s.armed, s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if armed {
		return ErrBusy
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for i := range p {
		select {
		case b, ok := <-s.rx:
			if !ok {
				if err := s.Err(); err != nil {
					return err
				}
				return io.ErrUnexpectedEOF
			}
			p[i] = b
		case <-expired:
			return ErrTimeout
		}
	}
	return nil
}

// ReceiveIT arms interrupt-style reception. Buffered bytes are delivered
// first; the channel is closed once the stream has ended.
func (s *StreamSerial) ReceiveIT() (<-chan byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.armed = true
	return s.rx, nil
}

// AbortReceiveIT disarms interrupt-style reception. Bytes not yet
// consumed stay buffered for the next Receive.
func (s *StreamSerial) AbortReceiveIT() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	return nil
}

// DeInit stops the reader and closes the stream if it is closable
func (s *StreamSerial) DeInit() error {
	var err error
	s.closeMu.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.armed = false
		s.mu.Unlock()
		close(s.done)
		if c, ok := s.rw.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

func (s *StreamSerial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
