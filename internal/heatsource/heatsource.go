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

// Package heatsource implements the controllable devices that deposit heat
// into a tank: submerged resistance elements, wrapped-condenser
// compressors, and external-loop compressors, each driven by its own
// turn-on/shut-off logic, hysteresis, and (for the compressor
// configurations) a performance map.
package heatsource

import (
	"fmt"
	"math"

	"thermtank/internal/logic"
	"thermtank/internal/perfmap"
	"thermtank/internal/tank"
)

// Configuration describes how a heat source exchanges heat with tank water.
type Configuration int

const (
	Resistive Configuration = iota
	WrappedCompressor
	ExternalLoop
)

// noRef marks an absent backup/companion/follow-up reference. Heat sources
// reference one another by index into the owning simulation's source list
// rather than by pointer, so the list can be copied, serialized, or
// reordered without fixing up cyclic pointers.
const noRef = -1

const (
	cpWaterKJPerKgC    = 4.181
	densityWaterKgPerL = 0.998

	// defaultExternalSubStepMinutes bounds the external-loop sub-step.
	defaultExternalSubStepMinutes = 1.0

	// minExternalSubStepMinutes floors the bisection in RunExternal that
	// shrinks a sub-step when it would overshoot a shut-off crossing.
	minExternalSubStepMinutes = 1.0 / 60

	maxExternalBisections = 8
)

// HeatSource is one controllable heat-delivery device attached to a tank.
type HeatSource struct {
	Name          string
	Configuration Configuration

	Condensity [12]float64
	PerfMap    perfmap.Evaluator // nil for Resistive
	CapacityKW float64           // fixed electrical draw, Resistive only
	Defrost    *perfmap.Defrost  // compressor configurations only

	Hysteresis   float64 // °C, applied to temperature-weighted predicates
	MinAmbientC  float64
	MaxAmbientC  float64
	MaxSetpointC float64 // 0 disables the reachability check

	IsVIP bool

	TurnOnLogic  []logic.Predicate
	ShutOffLogic []logic.Predicate
	StandbyLogic *logic.Predicate // external-loop companion anti-short-cycle logic

	DepressesTemperature bool

	BackupIndex     int
	CompanionIndex  int
	FollowedByIndex int

	// External-loop only.
	InletNode              int
	FlowLPerS              float64 // 0 selects single-pass implicit flow
	ExternalSubStepMinutes float64 // 0 selects defaultExternalSubStepMinutes

	// Engaged persists across steps so hysteresis has a consistent
	// reference point; IsOn/Runtime/Energy reset every step.
	Engaged bool

	IsOn            bool
	RuntimeMin      float64
	EnergyInputKWh  float64
	EnergyOutputKWh float64
}

// New returns a HeatSource with no backup/companion/follow-up references.
func New(name string, cfg Configuration) *HeatSource {
	return &HeatSource{
		Name:            name,
		Configuration:   cfg,
		BackupIndex:     noRef,
		CompanionIndex:  noRef,
		FollowedByIndex: noRef,
	}
}

// HasBackup, HasCompanion, HasFollowedBy report whether the corresponding
// reference is set.
func (h *HeatSource) HasBackup() bool     { return h.BackupIndex != noRef }
func (h *HeatSource) HasCompanion() bool  { return h.CompanionIndex != noRef }
func (h *HeatSource) HasFollowedBy() bool { return h.FollowedByIndex != noRef }

// ResetStepOutputs zeroes the per-step accumulators ahead of a new step.
func (h *HeatSource) ResetStepOutputs() {
	h.IsOn = false
	h.RuntimeMin = 0
	h.EnergyInputKWh = 0
	h.EnergyOutputKWh = 0
}

// AmbientOK reports whether ambientC falls within the source's configured
// [MinAmbientC, MaxAmbientC] window, independent of its turn-on logic.
func (h *HeatSource) AmbientOK(ambientC float64) bool {
	return ambientC >= h.MinAmbientC && ambientC <= h.MaxAmbientC
}

// ShouldEngage reports whether the source's turn-on logic, ambient window,
// and setpoint reachability all permit it to start running this step.
// Hysteresis narrows the turn-on window by Hysteresis degrees so that a
// shut-off and an immediate re-engage at the same temperature don't chatter.
func (h *HeatSource) ShouldEngage(nodes []float64, setpointC, inletC, ambientC float64) bool {
	if ambientC < h.MinAmbientC || ambientC > h.MaxAmbientC {
		return false
	}
	if h.MaxSetpointC > 0 && setpointC > h.MaxSetpointC {
		return false
	}
	for _, p := range h.TurnOnLogic {
		if p.Evaluate(nodes, setpointC, inletC, -h.Hysteresis) {
			return true
		}
	}
	return false
}

// ShouldShutOff reports whether any shut-off predicate is satisfied.
// Hysteresis raises each shut-off decision point by Hysteresis degrees.
func (h *HeatSource) ShouldShutOff(nodes []float64, setpointC, inletC float64) bool {
	for _, p := range h.ShutOffLogic {
		if p.Evaluate(nodes, setpointC, inletC, h.Hysteresis) {
			return true
		}
	}
	return false
}

// condenserTempC is the condensity-weighted average tank temperature used
// as the performance map's condenser-temperature input.
func condenserTempC(tk *tank.Tank, condensity [12]float64) float64 {
	dist := tk.DistributeCondensity(condensity)
	var sum float64
	for i, w := range dist {
		sum += w * tk.Nodes[i]
	}
	return sum
}

// deliver distributes capKJ across the tank according to condensity using
// the resistive-plug algorithm, returning the energy actually delivered and
// whether delivery was capped by the setpoint.
func deliver(tk *tank.Tank, condensity [12]float64, capKJ float64) (deliveredKJ float64, reachedSetpoint bool) {
	if capKJ <= 0 {
		return 0, false
	}
	dist := tk.DistributeCondensity(condensity)
	for node, frac := range dist {
		if frac <= 0 {
			continue
		}
		d, r := tk.AddHeatAboveNode(node, capKJ*frac)
		deliveredKJ += d
		if r {
			reachedSetpoint = true
		}
	}
	return deliveredKJ, reachedSetpoint
}

// RunResistive engages a fixed-power resistive element for up to
// stepMinutes, stopping early once the heated region reaches setpoint.
func (h *HeatSource) RunResistive(tk *tank.Tank, stepMinutes float64) {
	capKJ := h.CapacityKW * stepMinutes * 60
	delivered, reached := deliver(tk, h.Condensity, capKJ)

	runtimeMin := stepMinutes
	if reached && capKJ > 0 && delivered < capKJ {
		runtimeMin = stepMinutes * (delivered / capKJ)
	}
	h.RuntimeMin = runtimeMin
	h.EnergyInputKWh = h.CapacityKW * (runtimeMin / 60)
	h.EnergyOutputKWh = delivered / 3600
	h.IsOn = runtimeMin > 0
}

// RunWrapped evaluates the performance map at the tank's condensity-weighted
// condenser temperature and delivers the resulting capacity with the same
// resistive-plug algorithm used by RunResistive.
func (h *HeatSource) RunWrapped(tk *tank.Tank, ambientAirC, stepMinutes float64) error {
	if h.PerfMap == nil {
		return fmt.Errorf("heatsource: %s has no performance map", h.Name)
	}
	condenserC := condenserTempC(tk, h.Condensity)
	powerW, cop, err := h.PerfMap.Evaluate(ambientAirC, condenserC, tk.Setpoint, 0)
	if err != nil {
		return fmt.Errorf("heatsource: %s: %w", h.Name, err)
	}
	auxKW := 0.0
	if h.Defrost != nil {
		cop, auxKW = h.Defrost.Apply(ambientAirC, cop)
	}

	capacityKW := powerW * cop / 1000
	capKJ := capacityKW * stepMinutes * 60
	delivered, reached := deliver(tk, h.Condensity, capKJ)

	runtimeMin := stepMinutes
	if reached && capKJ > 0 && delivered < capKJ {
		runtimeMin = stepMinutes * (delivered / capKJ)
	}
	h.RuntimeMin = runtimeMin
	h.EnergyInputKWh = (powerW/1000)*(runtimeMin/60) + auxKW*(runtimeMin/60)
	h.EnergyOutputKWh = delivered / 3600
	h.IsOn = runtimeMin > 0
	return nil
}

// RunExternal simulates an external-loop compressor: water is drawn from
// InletNode, heated across a run of sub-steps, and returned at the top of
// the tank via tank.Tank.InsertTop, which shifts the existing column down
// and exits the displaced volume at the bottom. It stops when stepMinutes
// is exhausted or a shut-off predicate fires. Each candidate sub-step is
// trialled against a scratch copy of the tank first; if it would cross a
// shut-off predicate, the sub-step is bisected down toward that crossing
// rather than overshooting it, the way the source material shrinks its
// external-loop sub-step as a comparison nears.
func (h *HeatSource) RunExternal(tk *tank.Tank, ambientAirC, inletC, stepMinutes float64) error {
	if h.PerfMap == nil {
		return fmt.Errorf("heatsource: %s has no performance map", h.Name)
	}
	subStep := h.ExternalSubStepMinutes
	if subStep <= 0 {
		subStep = defaultExternalSubStepMinutes
	}

	var totalInputKWh, totalOutputKWh, ranMinutes float64
	remaining := stepMinutes

	for remaining > 1e-9 {
		if h.ShouldShutOff(tk.Nodes, tk.Setpoint, inletC) {
			break
		}
		dt := math.Min(subStep, remaining)

		condenserC := tk.Nodes[h.InletNode]
		powerW, cop, err := h.PerfMap.Evaluate(ambientAirC, condenserC, tk.Setpoint, 0)
		if err != nil {
			return fmt.Errorf("heatsource: %s: %w", h.Name, err)
		}
		if h.Defrost != nil {
			cop, _ = h.Defrost.Apply(ambientAirC, cop)
		}
		capacityKW := powerW * cop / 1000

		flow := h.FlowLPerS
		deltaT := tk.Setpoint - condenserC
		if flow <= 0 && deltaT <= 0 {
			break
		}

		var outputKJ, volL, insertTempC float64
		for bisect := 0; ; bisect++ {
			outputKJ = capacityKW * dt * 60
			if outputKJ <= 0 {
				dt = 0
				break
			}
			if flow > 0 {
				volL = flow * dt * 60
			} else {
				volL = outputKJ / (cpWaterKJPerKgC * densityWaterKgPerL * deltaT)
			}
			if volL <= 0 {
				dt = 0
				break
			}
			insertTempC = condenserC + outputKJ/(cpWaterKJPerKgC*densityWaterKgPerL*volL)

			trial := *tk
			trial.Nodes = append([]float64(nil), tk.Nodes...)
			trial.InsertTop(insertTempC, volL)

			if !h.ShouldShutOff(trial.Nodes, trial.Setpoint, inletC) || dt <= minExternalSubStepMinutes || bisect >= maxExternalBisections {
				break
			}
			dt /= 2
		}
		if dt <= 0 {
			break
		}

		tk.InsertTop(insertTempC, volL)

		totalInputKWh += (powerW / 1000) * (dt / 60)
		totalOutputKWh += outputKJ / 3600
		ranMinutes += dt
		remaining -= dt
	}

	h.RuntimeMin = ranMinutes
	h.EnergyInputKWh = totalInputKWh
	h.EnergyOutputKWh = totalOutputKWh
	h.IsOn = ranMinutes > 0
	return nil
}

// Run dispatches to the configuration-appropriate delivery algorithm.
func (h *HeatSource) Run(tk *tank.Tank, ambientAirC, inletC, stepMinutes float64) error {
	switch h.Configuration {
	case Resistive:
		h.RunResistive(tk, stepMinutes)
		return nil
	case WrappedCompressor:
		return h.RunWrapped(tk, ambientAirC, stepMinutes)
	case ExternalLoop:
		return h.RunExternal(tk, ambientAirC, inletC, stepMinutes)
	default:
		return fmt.Errorf("heatsource: %s has unknown configuration %d", h.Name, h.Configuration)
	}
}
