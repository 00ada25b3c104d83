// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"time"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

// runSimulatedEdges drives data-ready at drRateHz and PPS at the latched
// sub-tick rate until ctx is done.
func runSimulatedEdges(ctx context.Context, dev *bridge.Device, drRateHz int) {
	dr := time.NewTicker(time.Second / time.Duration(drRateHz))
	defer dr.Stop()

	ppsPeriod := func() time.Duration {
		return time.Duration(timebase.NominalPeriodUs/dev.PPS.Rate()) * time.Microsecond
	}
	period := ppsPeriod()
	pps := time.NewTicker(period)
	defer pps.Stop()

	log.Printf("simulate: data-ready at %d Hz, PPS every %v", drRateHz, period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-dr.C:
			dev.DataReady()
		case <-pps.C:
			dev.PPSEdge()
			if p := ppsPeriod(); p != period {
				period = p
				pps.Reset(period)
			}
		}
	}
}
