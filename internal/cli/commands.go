// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cli

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
)

// maxReads bounds the repeat count of one read command.
const maxReads = 1000

type command struct {
	name  string
	usage string

	// minArgs and maxArgs bound the hex argument count
	minArgs, maxArgs int

	run func(c *Console, d *bridge.Dispatcher, args []uint32)
}

var commands []command

func init() {
	commands = []command{
		{"read", "read <addr> [end] [count]: read registers on the current page", 1, 3, (*Console).read},
		{"write", "write <addr> <byte>: write one byte on the current page", 2, 2, (*Console).writeReg},
		{"readbuf", "readbuf: drain the buffer to the console", 0, 0, (*Console).readBuf},
		{"stream", "stream <0|1>: stream entries as they are captured", 1, 1, (*Console).stream},
		{"status", "status: read and clear the status register", 0, 0, (*Console).status},
		{"cnt", "cnt: buffered entry count", 0, 0, (*Console).count},
		{"about", "about: firmware and buffer information", 0, 0, (*Console).about},
		{"uptime", "uptime: milliseconds since boot", 0, 0, (*Console).uptime},
		{"help", "help: list commands", 0, 0, (*Console).help},
		{"freset", "freset: restore factory defaults", 0, 0, (*Console).factoryReset},
		{"cmd", "cmd <bits>: issue USER_COMMAND bits", 1, 1, (*Console).userCommand},
		{"echo", "echo <0|1>: console echo", 1, 1, (*Console).setEcho},
		{"delim", "delim <hex char>: output delimiter", 1, 1, (*Console).setDelim},
	}
}

// Execute runs one command line.
func (c *Console) Execute(d *bridge.Dispatcher, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		args, err := parseArgs(fields[1:])
		if err != nil || len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
			c.printf("Invalid args. Usage: %s%s", cmd.usage, newline)
			return
		}
		cmd.run(c, d, args)
		return
	}
	c.printf("Invalid command %q. Type help for a list%s", fields[0], newline)
}

func (c *Console) sep() string {
	return string(rune(c.delim.Load()))
}

func (c *Console) read(d *bridge.Dispatcher, args []uint32) {
	start := args[0]
	end := start
	if len(args) > 1 {
		end = args[1]
	}
	count := uint32(1)
	if len(args) > 2 {
		count = min(args[2], maxReads)
	}
	if start > 0xFF || end > 0xFF || end < start {
		c.printf("Invalid address range%s", newline)
		return
	}

	regs := d.Device().Regs
	for n := uint32(0); n < count; n++ {
		var sb strings.Builder
		for addr := start; addr <= end; addr += 2 {
			if addr != start {
				sb.WriteString(c.sep())
			}
			fmt.Fprintf(&sb, "%04X", regs.Read(uint8(addr)))
		}
		sb.WriteString(newline)
		c.printf("%s", sb.String())
	}
}

func (c *Console) writeReg(d *bridge.Dispatcher, args []uint32) {
	if args[0] > 0xFF || args[1] > 0xFF {
		c.printf("Invalid args. Address and value are bytes%s", newline)
		return
	}
	d.Device().Regs.Write(uint8(args[0]), uint8(args[1]))
}

func (c *Console) readBuf(d *bridge.Dispatcher, _ []uint32) {
	for {
		rec, ok := d.TakeRecord()
		if !ok {
			return
		}
		c.printf("%s", c.formatRecord(rec))
	}
}

func (c *Console) stream(d *bridge.Dispatcher, args []uint32) {
	on := args[0] != 0
	c.streaming.Store(on)
	d.SetStreaming(on)
}

func (c *Console) status(d *bridge.Dispatcher, _ []uint32) {
	c.printf("%04X%s", d.Device().Regs.ReadStatus(), newline)
}

func (c *Console) count(d *bridge.Dispatcher, _ []uint32) {
	c.printf("%d%s", d.Device().Buffer.Count(), newline)
}

func (c *Console) about(d *bridge.Dispatcher, _ []uint32) {
	regs := d.Device().Regs
	buf := d.Device().Buffer
	c.printf("IMU SPI buffer bridge, firmware rev %04X, built %04X-%04X%s",
		regs.Get(regmap.FWRev), regs.Get(regmap.FWYear), regs.Get(regmap.FWDayMonth), newline)
	c.printf("Buffer: %d bytes, %d words/entry, %d entries%s",
		buf.ArenaBytes(), buf.PayloadWords(), buf.Capacity(), newline)
}

func (c *Console) uptime(d *bridge.Dispatcher, _ []uint32) {
	c.printf("%dms%s", d.Device().Clock.MillisecondsUptime(), newline)
}

func (c *Console) help(_ *bridge.Dispatcher, _ []uint32) {
	c.printf("Arguments are hex%s", newline)
	for _, cmd := range commands {
		c.printf("  %s%s", cmd.usage, newline)
	}
}

func (c *Console) factoryReset(d *bridge.Dispatcher, _ []uint32) {
	d.Submit(regmap.CmdFactoryReset)
}

func (c *Console) userCommand(d *bridge.Dispatcher, args []uint32) {
	d.Submit(uint16(args[0]))
}

func (c *Console) setEcho(d *bridge.Dispatcher, args []uint32) {
	regs := d.Device().Regs
	v := regs.Get(regmap.CLIConfig) &^ regmap.CLIEchoDisable
	if args[0] == 0 {
		v |= regmap.CLIEchoDisable
	}
	regs.Set(regmap.CLIConfig, v)
}

func (c *Console) setDelim(d *bridge.Dispatcher, args []uint32) {
	if args[0] == 0 || args[0] > 0x7F {
		c.printf("Invalid args. Delimiter is an ASCII character%s", newline)
		return
	}
	regs := d.Device().Regs
	regs.Set(regmap.CLIConfig, regs.Get(regmap.CLIConfig)&0x00FF|uint16(args[0])<<8)
	c.delim.Store(args[0])
}
