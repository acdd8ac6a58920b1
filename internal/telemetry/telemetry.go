// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package telemetry feeds a running simulation with real sensor readings
// instead of a synthetic draw profile, for a rating rig wired to a physical
// tank over Modbus-TCP.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"thermtank/pkg/logger"
	"thermtank/pkg/modbus"
)

// Register names expected in the Modbus config's `registers` map. A live
// rig's config.yaml must define the inlet and ambient registers; the
// heat-source ambient (falls back to the tank ambient) and draw flow (falls
// back to 0) are optional, and any others are ignored.
const (
	RegAmbientC    = "ambient_temp_c"
	RegInletC      = "inlet_temp_c"
	RegHeatSrcC    = "heatsource_ambient_c"
	RegDrawFlowLPS = "draw_flow_l_per_s"
)

// Reading is the most recent set of sensor values, substituted into a
// sim.StepInput in place of synthetic values.
type Reading struct {
	Time               time.Time
	InletC             float64
	TankAmbientC       float64
	HeatSourceAmbientC float64
	DrawFlowLPerS      float64
	Stale              bool
}

// Feed polls a physical transmitter on an interval and keeps the most recent
// Reading available to the rating-run loop, reading the handful of registers
// a rating rig needs each step rather than a full historized register set.
type Feed struct {
	client   *modbus.Client
	log      *logger.Logger
	interval time.Duration

	mu   sync.RWMutex
	last Reading
}

// NewFeed connects to the Modbus-TCP device described by cfg and starts
// polling once Run is called.
func NewFeed(ctx context.Context, cfg *modbus.Config, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Feed{
		client:   modbus.NewClient(ctx, cfg),
		log:      logger.New("Telemetry"),
		interval: interval,
	}
}

// Run polls the configured registers until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.log.Info("Starting live telemetry feed (poll every %v)", f.interval)
	f.poll()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.log.Info("Stopped")
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *Feed) poll() {
	inlet, err := f.readFloat(RegInletC)
	if err != nil {
		f.log.Error("inlet temperature read failed: %v", err)
		f.markStale()
		return
	}
	tankAmbient, err := f.readFloat(RegAmbientC)
	if err != nil {
		f.log.Error("ambient temperature read failed: %v", err)
		f.markStale()
		return
	}
	heatSourceAmbient, err := f.readFloatOptional(RegHeatSrcC, tankAmbient)
	flow, err2 := f.readFloatOptional(RegDrawFlowLPS, 0)
	if err2 != nil {
		f.log.Debug("draw flow register unavailable: %v", err2)
	}

	reading := Reading{
		Time:               time.Now(),
		InletC:             inlet,
		TankAmbientC:       tankAmbient,
		HeatSourceAmbientC: heatSourceAmbient,
		DrawFlowLPerS:      flow,
	}

	f.mu.Lock()
	f.last = reading
	f.mu.Unlock()
	f.log.Debug("telemetry poll: %+v", reading)
}

func (f *Feed) markStale() {
	f.mu.Lock()
	f.last.Stale = true
	f.mu.Unlock()
}

func (f *Feed) readFloat(name string) (float64, error) {
	v, err := f.client.ReadValue(name)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case float32:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("register %q decoded to unexpected type %T", name, v)
	}
}

func (f *Feed) readFloatOptional(name string, fallback float64) (float64, error) {
	v, err := f.readFloat(name)
	if err != nil {
		return fallback, err
	}
	return v, nil
}

// Latest returns the most recently polled reading. Stale is true if the
// last poll attempt failed; callers should hold the previous step's values
// rather than feed a zeroed reading into the simulation.
func (f *Feed) Latest() Reading {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// Close releases the underlying Modbus connection.
func (f *Feed) Close() {
	f.client.Close()
}
