// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps reads NMEA from a GNSS receiver and offers the UTC second
// of each valid fix as an absolute PPS epoch.
package gps

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// Receiver tracks the latest RMC fix.
type Receiver struct {
	mu      sync.Mutex
	fix     Fix
	pending uint32
	fresh   bool
}

// Open opens a serial GNSS receiver.
func Open(portName string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", portName, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", portName, baud)
	return port, nil
}

// Run reads sentences from r until it fails.
func (rc *Receiver) Run(r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("gps: read: %w", err)
		}
		rc.HandleLine(line)
	}
}

// HandleLine parses one NMEA line. Anything other than RMC is ignored.
func (rc *Receiver) HandleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receiver or partial sentence
		return
	}
	if sentence.DataType() != nmea.TypeRMC {
		return
	}
	m := sentence.(nmea.RMC)

	fix := Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   string(m.Validity),
	}
	valid := fix.Validity == nmea.ValidRMC && m.Time.Valid && m.Date.Valid
	if valid {
		fix.Unix = time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
			m.Time.Hour, m.Time.Minute, m.Time.Second, 0, time.UTC).Unix()
	}

	rc.mu.Lock()
	rc.fix = fix
	if valid {
		rc.pending = uint32(fix.Unix)
		rc.fresh = true
	}
	rc.mu.Unlock()
}

// TakeEpoch returns the UTC second of the newest valid fix once.
func (rc *Receiver) TakeEpoch() (uint32, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.fresh {
		return 0, false
	}
	rc.fresh = false
	return rc.pending, true
}

// Fix returns the latest fix, valid or not.
func (rc *Receiver) Fix() Fix {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.fix
}
