// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ymodem

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks packet statistics and error rates for one transfer
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets   uint64
	ValidPackets   uint64
	HeaderPackets  uint64
	CRCErrors      uint64
	SequenceErrors uint64
	DecodeErrors   uint64
	NAKs           uint64
	Probes         uint64
	StrayBytes     uint64
	BytesWritten   uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
	Throughput float64 // bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a data packet and its validation result
func (s *Statistics) Update(packet *Packet, err error) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
		s.ValidPackets++
		if packet != nil && packet.IsHeader() {
			s.HeaderPackets++
		}
	case errors.Is(err, ErrCRCMismatch):
		s.CRCErrors++
	case errors.Is(err, ErrSequenceMismatch):
		s.SequenceErrors++
	default:
		s.DecodeErrors++
	}
}

// Errors returns the number of rejected packets
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.SequenceErrors + s.DecodeErrors
}

// CalculateRates calculates packet, error and byte rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
		s.Throughput = float64(s.BytesWritten) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalPackets > 0 {
		validPercent = float64(s.ValidPackets) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Transfer Statistics (%.1f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, validPercent)
	result += fmt.Sprintf("Bytes Written:   %8d\n", s.BytesWritten)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.SequenceErrors > 0 {
		result += fmt.Sprintf("Sequence Errors: %8d\n", s.SequenceErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.NAKs > 0 {
		result += fmt.Sprintf("NAKs:            %8d\n", s.NAKs)
	}
	if s.StrayBytes > 0 {
		result += fmt.Sprintf("Stray Bytes:     %8d\n", s.StrayBytes)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Throughput:      %8.1f bytes/sec\n", s.Throughput)
	result += "==========================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
