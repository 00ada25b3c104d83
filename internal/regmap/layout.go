// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package regmap

// Local pages. Every page below PageOutput belongs to the IMU.
const (
	PageOutput uint8 = 252
	PageConfig uint8 = 253
	PageWrite  uint8 = 254
	PageRead   uint8 = 255

	// PageBoundary is the first locally resolved page.
	PageBoundary = PageOutput

	RegsPerPage  = 64
	NumRegisters = 4 * RegsPerPage
)

// Local register indices: (page - PageBoundary) * 64 + addr >> 1.
const (
	OutputPageID = 0

	ConfigPageID    = 64
	BufConfig       = 65
	BufLen          = 66
	BtnConfig       = 67
	DIOInputConfig  = 68
	DIOOutputConfig = 69
	WaterIntConfig  = 70
	ErrorIntConfig  = 71
	IMUSPIConfig    = 72
	UserSPIConfig   = 73
	CLIConfig       = 74
	UserCommand     = 75
	PPSConfig       = 76
	UTCTimestampLwr = 77
	UTCTimestampUpr = 78
	TimestampLwr    = 79
	TimestampUpr    = 80
	Status0         = 81
	BufCnt0         = 82
	UptimeLwr       = 83
	UptimeUpr       = 84
	FWRev           = 119
	FWDayMonth      = 120
	FWYear          = 121

	WritePageID = 128
	BufWrite0   = 136
	FlashSig    = 191

	ReadPageID  = 192
	Status1     = 193
	BufCnt1     = 194
	BufRetrieve = 195
	BufEntry0   = 196

	// lastConfigWritable bounds writes on the config page.
	lastConfigWritable = UTCTimestampUpr
	bufWriteWords      = 32
)

// BUF_CONFIG bits.
const BufConfigIMUBurst uint16 = 1 << 0

// DIO_INPUT_CONFIG bits.
const (
	DIOInputDRRising  uint16 = 1 << 0
	DIOInputPPSRising uint16 = 1 << 1
)

// DIO_OUTPUT_CONFIG bits.
const (
	DIOOutputWatermark uint16 = 1 << 0
	DIOOutputOverrun   uint16 = 1 << 1
	DIOOutputError     uint16 = 1 << 2
)

// CLI_CONFIG bits.
const CLIEchoDisable uint16 = 1 << 0

// USER_COMMAND bits.
const (
	CmdClearBuffer   uint16 = 1 << 0
	CmdFactoryReset  uint16 = 1 << 2
	CmdFlashUpdate   uint16 = 1 << 3
	CmdIMUReset      uint16 = 1 << 4
	CmdPPSEnable     uint16 = 1 << 8
	CmdPPSDisable    uint16 = 1 << 9
	CmdSoftwareReset uint16 = 1 << 15
)

// FirmwareRevision is reported in FW_REV as major.minor in BCD.
const FirmwareRevision uint16 = 0x0100

// defaults holds every non-zero register at boot.
var defaults = map[int]uint16{
	OutputPageID:   uint16(PageOutput),
	ConfigPageID:   uint16(PageConfig),
	BufConfig:      BufConfigIMUBurst,
	BufLen:         10,
	DIOInputConfig: DIOInputDRRising | DIOInputPPSRising,
	WaterIntConfig: 32,
	ErrorIntConfig: 0xFFFF,
	IMUSPIConfig:   0x140A,
	CLIConfig:      uint16(',') << 8,
	FWRev:          FirmwareRevision,
	WritePageID:    uint16(PageWrite),
	ReadPageID:     uint16(PageRead),
}

// Default returns the boot value of a register.
func Default(idx int) uint16 {
	return defaults[idx]
}

// Index resolves a page and byte address to a local index. ok is false
// for IMU pages and for addresses past the 64 registers of a page.
func Index(page, addr uint8) (idx int, ok bool) {
	if page < PageBoundary || addr>>1 >= RegsPerPage {
		return 0, false
	}
	return int(page-PageBoundary)*RegsPerPage + int(addr>>1), true
}
