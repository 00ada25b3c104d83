// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cli is the line-oriented serial console. Bytes are collected by
// a reader goroutine and executed from the dispatcher's check-transport
// state, so every command sees the register map exactly as the SPI
// master does.
package cli

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
)

const (
	maxLine  = 64
	inQueue  = 256
	newline  = "\r\n"
	readSize = 64
)

// Console is a serial command console. It is both a bridge.Transport and
// a bridge.Sink: streamed entries are written while "stream 1" is active.
type Console struct {
	w  io.Writer
	wm sync.Mutex

	in   chan []byte
	line []byte

	streaming atomic.Bool
	// delim mirrors the CLI_CONFIG delimiter for Publish
	delim atomic.Uint32
}

// Open opens the console on a serial port.
func Open(portName string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cli: open %s: %w", portName, err)
	}
	log.Printf("cli: serial console on %s at %d baud", portName, baud)
	return port, nil
}

// New returns a console writing to w. Input arrives through Listen or
// Feed.
func New(w io.Writer) *Console {
	c := &Console{w: w, in: make(chan []byte, inQueue)}
	c.delim.Store(uint32(regmap.Default(regmap.CLIConfig) >> 8))
	return c
}

// Listen copies input from r into the console until r fails.
func (c *Console) Listen(r io.Reader) error {
	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.Feed(buf[:n])
		}
		if err != nil {
			return fmt.Errorf("cli: read: %w", err)
		}
	}
}

// Feed queues input bytes. It blocks when the dispatcher falls behind.
func (c *Console) Feed(b []byte) {
	chunk := make([]byte, len(b))
	copy(chunk, b)
	c.in <- chunk
}

// Service handles every queued byte. Complete lines run immediately.
func (c *Console) Service(d *bridge.Dispatcher) {
	c.delim.Store(uint32(d.Device().Regs.Get(regmap.CLIConfig) >> 8))
	for {
		select {
		case chunk := <-c.in:
			for _, b := range chunk {
				c.handleByte(d, b)
			}
		default:
			return
		}
	}
}

func (c *Console) echo(d *bridge.Dispatcher) bool {
	return d.Device().Regs.Get(regmap.CLIConfig)&regmap.CLIEchoDisable == 0
}

func (c *Console) handleByte(d *bridge.Dispatcher, b byte) {
	switch b {
	case '\b', 0x7F:
		if len(c.line) > 0 {
			c.line = c.line[:len(c.line)-1]
		}
		if c.echo(d) {
			c.printf("\b \b")
		}
	case '\r', '\n':
		if b == '\r' && c.echo(d) {
			c.printf(newline)
		}
		line := string(c.line)
		c.line = c.line[:0]
		if strings.TrimSpace(line) != "" {
			c.Execute(d, line)
		}
	default:
		if len(c.line) < maxLine {
			c.line = append(c.line, b)
		}
		if c.echo(d) {
			c.printf("%c", b)
		}
	}
}

// Publish writes one streamed entry as a delimited hex line while
// streaming is on.
func (c *Console) Publish(rec imu.Record) error {
	if !c.streaming.Load() {
		return nil
	}
	return c.write(c.formatRecord(rec))
}

// formatRecord renders seconds, microseconds, payload and checksum.
func (c *Console) formatRecord(rec imu.Record) string {
	sep := string(rune(c.delim.Load()))
	var sb strings.Builder
	fmt.Fprintf(&sb, "%08X%s%08X", rec.PPSSeconds, sep, rec.Micros)
	for _, w := range rec.Words {
		fmt.Fprintf(&sb, "%s%04X", sep, w)
	}
	fmt.Fprintf(&sb, "%s%04X", sep, rec.Checksum)
	sb.WriteString(newline)
	return sb.String()
}

func (c *Console) write(s string) error {
	c.wm.Lock()
	defer c.wm.Unlock()
	_, err := io.WriteString(c.w, s)
	if err != nil {
		return fmt.Errorf("cli: write: %w", err)
	}
	return nil
}

func (c *Console) printf(format string, args ...any) {
	if err := c.write(fmt.Sprintf(format, args...)); err != nil {
		log.Printf("%v", err)
	}
}

// parseArgs reads hex arguments with an optional 0x prefix.
func parseArgs(fields []string) ([]uint32, error) {
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.ToLower(f), "0x")
		v, err := strconv.ParseUint(f, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q", f)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
