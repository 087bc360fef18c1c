// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package boot implements the Helios bootloader core: the YMODEM-derived
// transfer state machine that streams one image into the application
// flash region, and the handoff into the freshly written image.
//
// # States
//
//	DISCOVER -> ERASE -> RECEIVE -> COMPLETE
//	    |         |         |
//	    |         |         +-> CANCELLED | FATAL_FLASH | DESYNC | STALLED
//	    |         +-> FATAL_FLASH
//	    +-> TIMEOUT | CANCELLED
//
// DISCOVER transmits the 'R' probe once per timer tick until the sender
// answers ACK. After MaxRetries silent ticks the attempt ends in TIMEOUT.
// ERASE clears the whole region and requests the stream with 'C'.
// RECEIVE validates each packet (sequence complement and CRC-16), NAKs
// corrupt packets, acknowledges the sequence 0 header without writing it
// and programs every other packet at the write cursor.
//
// # Usage
//
//	bl, err := boot.New(boot.Device{
//	    Serial: uart,
//	    Timer:  tim2, // optional, defaults to Config.TickPeriod
//	    Flash:  flashController,
//	    CPU:    cpu,
//	}, boot.WithConfig(cfg), boot.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	bl.Boot() // never returns
//
// Run performs only the transfer and reports the terminal state, which is
// what host tools and tests use.
package boot
