// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package regmap

import "fmt"

// BitField describes a field within a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is the metadata shown by the register console.
type RegisterInfo struct {
	Index       int        `json:"index"`
	Page        uint8      `json:"page"`
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW", "RC"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

var registerTable = []RegisterInfo{
	{Index: OutputPageID, Name: "PAGE_ID", Description: "Output page select", Access: "RW"},

	// Configuration page
	{Index: ConfigPageID, Name: "PAGE_ID", Description: "Config page select", Access: "RW"},
	{Index: BufConfig, Name: "BUF_CONFIG", Description: "Buffer configuration", Access: "RW",
		BitFields: []BitField{
			{Bits: "0", Name: "IMU_BURST", Description: "Capture uses the IMU native burst", Values: "0=Staged BUF_WRITE words, 1=Native burst"},
		}},
	{Index: BufLen, Name: "BUF_LEN", Description: "Payload words per entry (1-32)", Access: "RW"},
	{Index: BtnConfig, Name: "BTN_CONFIG", Description: "Button configuration", Access: "RW"},
	{Index: DIOInputConfig, Name: "DIO_INPUT_CONFIG", Description: "Edge inputs", Access: "RW",
		BitFields: []BitField{
			{Bits: "0", Name: "DR_POLARITY", Description: "Data ready edge", Values: "0=Falling, 1=Rising"},
			{Bits: "1", Name: "PPS_POLARITY", Description: "PPS edge", Values: "0=Falling, 1=Rising"},
		}},
	{Index: DIOOutputConfig, Name: "DIO_OUTPUT_CONFIG", Description: "Interrupt output pins (applied on upper byte write)", Access: "RW",
		BitFields: []BitField{
			{Bits: "0", Name: "WATERMARK", Description: "Drive watermark pin", Values: "0=Off, 1=On"},
			{Bits: "1", Name: "OVERRUN", Description: "Drive overrun pin", Values: "0=Off, 1=On"},
			{Bits: "2", Name: "ERROR", Description: "Drive error pin", Values: "0=Off, 1=On"},
		}},
	{Index: WaterIntConfig, Name: "WATER_INT_CONFIG", Description: "Watermark entry count", Access: "RW"},
	{Index: ErrorIntConfig, Name: "ERROR_INT_CONFIG", Description: "Status mask for the error pin", Access: "RW"},
	{Index: IMUSPIConfig, Name: "IMU_SPI_CONFIG", Description: "IMU SPI timing (applied on upper byte write)", Access: "RW",
		BitFields: []BitField{
			{Bits: "7:0", Name: "SCLK", Description: "Clock in 100 kHz units", Values: "0=1 MHz"},
			{Bits: "15:8", Name: "STALL", Description: "Stall between frames, us", Values: "0=20 us"},
		}},
	{Index: UserSPIConfig, Name: "USER_SPI_CONFIG", Description: "User SPI configuration", Access: "RW"},
	{Index: CLIConfig, Name: "CLI_CONFIG", Description: "Serial console", Access: "RW",
		BitFields: []BitField{
			{Bits: "0", Name: "ECHO_DISABLE", Description: "Command echo", Values: "0=Echo, 1=Silent"},
			{Bits: "15:8", Name: "DELIM", Description: "Stream field delimiter", Values: "ASCII"},
		}},
	{Index: UserCommand, Name: "USER_COMMAND", Description: "Command (executed on upper byte write)", Access: "W",
		BitFields: []BitField{
			{Bits: "0", Name: "CLEAR_BUF", Description: "Empty the buffer"},
			{Bits: "2", Name: "FACTORY_RESET", Description: "Restore defaults"},
			{Bits: "3", Name: "FLASH_UPDATE", Description: "Save config to flash"},
			{Bits: "4", Name: "IMU_RESET", Description: "Pulse IMU reset"},
			{Bits: "8", Name: "PPS_ENABLE", Description: "Start PPS counting"},
			{Bits: "9", Name: "PPS_DISABLE", Description: "Stop PPS counting"},
			{Bits: "15", Name: "SOFT_RESET", Description: "Reload flash, reset buffer"},
		}},
	{Index: PPSConfig, Name: "PPS_CONFIG", Description: "PPS rate", Access: "RW",
		BitFields: []BitField{
			{Bits: "1:0", Name: "RATE", Description: "Edges per second", Values: "0=1, 1=10, 2=100, 3=1000"},
		}},
	{Index: UTCTimestampLwr, Name: "UTC_TIMESTAMP_LWR", Description: "PPS seconds, low", Access: "RW"},
	{Index: UTCTimestampUpr, Name: "UTC_TIMESTAMP_UPR", Description: "PPS seconds, high", Access: "RW"},
	{Index: TimestampLwr, Name: "TIMESTAMP_LWR", Description: "Microseconds since PPS, low", Access: "R"},
	{Index: TimestampUpr, Name: "TIMESTAMP_UPR", Description: "Microseconds since PPS, high", Access: "R"},
	{Index: Status0, Name: "STATUS_0", Description: "Status (clears on read)", Access: "RC",
		BitFields: []BitField{
			{Bits: "0", Name: "BUF_WATERMARK", Description: "Entry count at or over watermark"},
			{Bits: "4", Name: "OVERRUN", Description: "Data ready during a burst"},
			{Bits: "6", Name: "PPS_UNLOCK", Description: "PPS period out of tolerance or missing"},
			{Bits: "10", Name: "FLASH_ERROR", Description: "Flash update failed"},
			{Bits: "11", Name: "FLASH_UPDATE", Description: "Flash update done"},
		}},
	{Index: BufCnt0, Name: "BUF_CNT_0", Description: "Buffered entries", Access: "R"},
	{Index: UptimeLwr, Name: "UPTIME_LWR", Description: "Uptime ms, low", Access: "R"},
	{Index: UptimeUpr, Name: "UPTIME_UPR", Description: "Uptime ms, high", Access: "R"},
	{Index: FWRev, Name: "FW_REV", Description: "Firmware revision", Access: "R"},
	{Index: FWDayMonth, Name: "FW_DAY_MONTH", Description: "Build day and month, BCD", Access: "R"},
	{Index: FWYear, Name: "FW_YEAR", Description: "Build year, BCD", Access: "R"},

	// Write page
	{Index: WritePageID, Name: "PAGE_ID", Description: "Write page select", Access: "RW"},
	{Index: FlashSig, Name: "FLASH_SIG", Description: "Signature of the stored config", Access: "R"},

	// Read page
	{Index: ReadPageID, Name: "PAGE_ID", Description: "Read page select (enables capture)", Access: "RW"},
	{Index: Status1, Name: "STATUS_1", Description: "Status mirror (clears on read)", Access: "RC"},
	{Index: BufCnt1, Name: "BUF_CNT_1", Description: "Buffered entries; write 0 to clear", Access: "RW"},
	{Index: BufRetrieve, Name: "BUF_RETRIEVE", Description: "Read to load the next entry", Access: "R"},
}

func init() {
	for i := 0; i < bufWriteWords; i++ {
		registerTable = append(registerTable, RegisterInfo{
			Index:       BufWrite0 + i,
			Name:        fmt.Sprintf("BUF_WRITE_%d", i),
			Description: "Staged burst transmit word",
			Access:      "RW",
		})
	}
	for i := 0; i < NumRegisters-BufEntry0; i++ {
		registerTable = append(registerTable, RegisterInfo{
			Index:       BufEntry0 + i,
			Name:        fmt.Sprintf("BUF_DATA_%d", i),
			Description: "Loaded entry word",
			Access:      "R",
		})
	}
	for i := range registerTable {
		r := &registerTable[i]
		r.Page = PageBoundary + uint8(r.Index/RegsPerPage)
		r.Address = fmt.Sprintf("0x%02X", (r.Index%RegsPerPage)*2)
		if d := Default(r.Index); d != 0 {
			r.Default = fmt.Sprintf("0x%04X", d)
		}
	}
}

// Info returns metadata for every named register.
func Info() []RegisterInfo {
	out := make([]RegisterInfo, len(registerTable))
	copy(out, registerTable)
	return out
}

// Name returns the register name at idx, or "" when unnamed.
func Name(idx int) string {
	for _, r := range registerTable {
		if r.Index == idx {
			return r.Name
		}
	}
	return ""
}
