// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"

	"github.com/relabs-tech/imu_buffer_bridge/internal/buffer"
)

// BurstWords is the length of a native burst response, without the
// leading word clocked out while the command is sent.
const BurstWords = 10

// Sample is one native burst decoded into raw register values.
type Sample struct {
	Diag uint16 `json:"diag"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Temp        int16  `json:"temp"`
	DataCounter uint16 `json:"data_cntr"`
	Checksum    uint16 `json:"checksum"`
}

// DecodeBurst reads the fixed burst layout: DIAG_STAT, gyro XYZ, accel XYZ,
// TEMP, DATA_CNTR, checksum.
func DecodeBurst(words []uint16) (Sample, error) {
	if len(words) < BurstWords {
		return Sample{}, fmt.Errorf("burst: need %d words, got %d", BurstWords, len(words))
	}
	return Sample{
		Diag:        words[0],
		Gx:          int16(words[1]),
		Gy:          int16(words[2]),
		Gz:          int16(words[3]),
		Ax:          int16(words[4]),
		Ay:          int16(words[5]),
		Az:          int16(words[6]),
		Temp:        int16(words[7]),
		DataCounter: words[8],
		Checksum:    words[9],
	}, nil
}

// BurstChecksumOK checks the IMU's own burst checksum: the byte sum of
// the nine words before it.
func BurstChecksumOK(words []uint16) bool {
	if len(words) < BurstWords {
		return false
	}
	var sum uint16
	for _, w := range words[:BurstWords-1] {
		sum += w&0xFF + w>>8
	}
	return sum == words[BurstWords-1]
}

// Record is a captured buffer entry as published to stream sinks.
type Record struct {
	PPSSeconds uint32   `json:"pps_seconds"`
	Micros     uint32   `json:"micros"`
	Checksum   uint16   `json:"checksum"`
	Valid      bool     `json:"valid"`
	Words      []uint16 `json:"words"`
	Sample     *Sample  `json:"sample,omitempty"`
}

// NewRecord copies an entry into a Record. Entries long enough to hold a
// native burst also carry the decoded Sample.
func NewRecord(e buffer.Entry) Record {
	payload := make([]uint16, len(e.Payload()))
	copy(payload, e.Payload())

	r := Record{
		PPSSeconds: e.Seconds(),
		Micros:     e.Micros(),
		Checksum:   e.Checksum(),
		Valid:      e.Valid(),
		Words:      payload,
	}
	if s, err := DecodeBurst(payload); err == nil {
		r.Sample = &s
	}
	return r
}
