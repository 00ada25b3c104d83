// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package regmap

// Persisted lists the configuration registers kept in a flash image.
var Persisted = []int{
	BufConfig,
	BufLen,
	BtnConfig,
	DIOInputConfig,
	DIOOutputConfig,
	WaterIntConfig,
	ErrorIntConfig,
	IMUSPIConfig,
	UserSPIConfig,
	CLIConfig,
	PPSConfig,
}

// Snapshot copies the persisted registers, keyed by register name.
func (m *Map) Snapshot() map[string]uint16 {
	out := make(map[string]uint16, len(Persisted))
	for _, idx := range Persisted {
		out[Name(idx)] = m.Get(idx)
	}
	return out
}

// Restore loads persisted registers by name and reports how many it
// applied. Unknown names are skipped. The caller resizes the buffer.
func (m *Map) Restore(vals map[string]uint16) int {
	n := 0
	for _, idx := range Persisted {
		if v, ok := vals[Name(idx)]; ok {
			m.Set(idx, v)
			n++
		}
	}
	return n
}

// Signature is the 16-bit sum of the persisted register values, as kept in
// FLASH_SIG.
func Signature(vals map[string]uint16) uint16 {
	var sig uint16
	for _, idx := range Persisted {
		sig += vals[Name(idx)]
	}
	return sig
}
