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

// Package sim implements the step orchestrator that ties a tank and its
// heat sources together: applying demand-response mode, walking the
// prioritized source list to decide who runs, delivering heat, then
// drawing, losing heat to ambient, and re-homogenizing the node profile.
package sim

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"thermtank/internal/heatsource"
	"thermtank/internal/logic"
	"thermtank/internal/tank"
)

// Aborted is returned by accessors once the sticky failure flag is set, or
// when an index is out of range. Named for the sentinel HPWH_ABORT value
// this system's accessors are documented to return on failure.
const Aborted = -99999.0

// DRMode is the demand-response control signal for a step.
type DRMode int

const (
	DRAllow DRMode = iota
	DRBlock
	DREngage
)

// ErrorKind classifies a simulation error per the engine's error-handling
// design: configuration problems are caught at init, input problems reject
// a step without advancing state, numeric problems set the sticky failure
// flag, and policy rejections are deliberate refusals of a requested
// mutation.
type ErrorKind int

const (
	ConfigurationInvalid ErrorKind = iota
	InputOutOfDomain
	NumericFailure
	PolicyRejection
)

// Error is the error type returned by every fallible operation in this
// package.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// StepInput is one step's worth of boundary conditions.
type StepInput struct {
	InletC             float64
	DrawVolumeL        float64
	TankAmbientC       float64
	HeatSourceAmbientC float64
	DR                 DRMode
	StepMinutes        float64
}

// StepResult is the subset of per-step outputs worth retaining across a
// run of many steps; per-source detail is read from the Simulation's
// accessors immediately after each step if needed.
type StepResult struct {
	OutletTempC       float64
	EnvHeatRemovedKWh float64
	StandbyLossKWh    float64
}

const (
	minAmbientDomainC = -50
	maxAmbientDomainC = 100

	depressionSagPerMinuteC      = 0.2
	depressionRecoveryPerMinuteC = 0.05
	maxDepressionC               = 5.0

	virtualThermocoupleCount = 6
)

// Simulation couples one tank with its ordered, cross-referencing list of
// heat sources and the mutable state the step orchestrator carries between
// steps (hysteresis is implicit in each source's Engaged flag; temperature
// depression and the sticky failure flag live here).
type Simulation struct {
	ID string

	Tank          *tank.Tank
	Sources       []*heatsource.HeatSource
	TankSizeFixed bool

	failed bool

	virtualAmbientC        float64
	depressionInitialized  bool
	lastStepHadDepression  bool

	outletTempC       float64
	envHeatRemovedKWh float64
	standbyLossKWh    float64
}

// New builds a simulation over an already-configured tank and source list.
// Sources reference each other by index into this same slice.
func New(tk *tank.Tank, sources []*heatsource.HeatSource) *Simulation {
	return &Simulation{
		ID:      uuid.NewString(),
		Tank:    tk,
		Sources: sources,
	}
}

// Failed reports whether a prior step tripped the sticky failure flag.
func (s *Simulation) Failed() bool { return s.failed }

// ResetTankToSetpoint sets every tank node to the setpoint without
// reallocating the tank or its heat sources, useful between successive
// rating runs against the same configuration.
func (s *Simulation) ResetTankToSetpoint() {
	s.Tank.ResetToSetpoint()
}

// SetSetpoint changes the tank setpoint, rejecting a value above any
// source's configured maxSetpoint.
func (s *Simulation) SetSetpoint(tempC float64) error {
	for _, h := range s.Sources {
		if h.MaxSetpointC > 0 && tempC > h.MaxSetpointC {
			return errf(PolicyRejection, "sim: setpoint %.2f exceeds heat source %q maxSetpoint %.2f", tempC, h.Name, h.MaxSetpointC)
		}
	}
	s.Tank.Setpoint = tempC
	return nil
}

// SetTankSize changes the tank volume, rejecting the change if the
// simulation was built with a fixed tank size.
func (s *Simulation) SetTankSize(volumeL float64) error {
	if s.TankSizeFixed {
		return errf(PolicyRejection, "sim: tank size is fixed")
	}
	if volumeL < 0 {
		return errf(ConfigurationInvalid, "sim: negative tank volume %.2f", volumeL)
	}
	s.Tank.VolumeL = volumeL
	return nil
}

func (s *Simulation) validate(in StepInput) error {
	if in.DrawVolumeL < 0 {
		return errf(InputOutOfDomain, "sim: negative draw volume %.2f", in.DrawVolumeL)
	}
	if in.StepMinutes <= 0 {
		return errf(InputOutOfDomain, "sim: step duration must be positive, got %.4f", in.StepMinutes)
	}
	if in.TankAmbientC < minAmbientDomainC || in.TankAmbientC > maxAmbientDomainC {
		return errf(InputOutOfDomain, "sim: tank ambient %.2f outside [-50,100]", in.TankAmbientC)
	}
	if in.HeatSourceAmbientC < minAmbientDomainC || in.HeatSourceAmbientC > maxAmbientDomainC {
		return errf(InputOutOfDomain, "sim: heat source ambient %.2f outside [-50,100]", in.HeatSourceAmbientC)
	}
	return nil
}

func drLockouts(dr DRMode) (loR, loC bool) {
	if dr == DRBlock {
		return true, true
	}
	return false, false
}

func lockedOut(h *heatsource.HeatSource, loR, loC bool) bool {
	if h.Configuration == heatsource.Resistive {
		return loR
	}
	return loC
}

func (s *Simulation) firstEligibleIndex(loR, loC bool) int {
	for i, h := range s.Sources {
		if !lockedOut(h, loR, loC) {
			return i
		}
	}
	return -1
}

// stepDepression tracks a virtual ambient temperature that sags while a
// temperature-depressing source ran the previous step and recovers
// otherwise, clamped to within maxDepressionC of the real ambient.
func (s *Simulation) stepDepression(ambientC float64) float64 {
	if !s.depressionInitialized {
		s.virtualAmbientC = ambientC
		s.depressionInitialized = true
	}
	if s.lastStepHadDepression {
		s.virtualAmbientC -= depressionSagPerMinuteC
		if s.virtualAmbientC < ambientC-maxDepressionC {
			s.virtualAmbientC = ambientC - maxDepressionC
		}
	} else {
		s.virtualAmbientC += depressionRecoveryPerMinuteC
		if s.virtualAmbientC > ambientC {
			s.virtualAmbientC = ambientC
		}
	}
	return s.virtualAmbientC
}

// RunOneStep advances the simulation by one step: applies the DR mode,
// walks the prioritized source list to decide engagement, runs engaged
// sources, then draws, loses heat to ambient, conducts, and re-homogenizes
// the node profile.
func (s *Simulation) RunOneStep(in StepInput) error {
	if s.failed {
		return errf(NumericFailure, "sim: sticky failure flag set, re-initialize before stepping")
	}
	if err := s.validate(in); err != nil {
		return err
	}

	loR, loC := drLockouts(in.DR)

	ambientForEval := in.HeatSourceAmbientC
	if in.StepMinutes <= 1.0+1e-9 {
		ambientForEval = s.stepDepression(in.HeatSourceAmbientC)
	} else {
		s.depressionInitialized = false
	}

	for _, h := range s.Sources {
		h.ResetStepOutputs()
	}

	forcedIdx := -1
	if in.DR == DREngage {
		forcedIdx = s.firstEligibleIndex(loR, loC)
	}

	primaryEngagedIdx := -1
	anyDepressing := false

	for i, h := range s.Sources {
		if lockedOut(h, loR, loC) {
			h.Engaged = false
			continue
		}

		ambient := ambientForEval
		if !h.AmbientOK(ambient) && h.HasBackup() {
			// defer to the backup source, processed at its own index
			h.Engaged = false
			continue
		}

		wantsEngage := false
		switch {
		case i == forcedIdx:
			wantsEngage = true
		case h.Engaged:
			if h.ShouldShutOff(s.Tank.Nodes, s.Tank.Setpoint, in.InletC) {
				h.Engaged = false
				if h.HasFollowedBy() {
					forcedIdx = h.FollowedByIndex
				}
			} else {
				wantsEngage = true
			}
		default:
			wantsEngage = h.ShouldEngage(s.Tank.Nodes, s.Tank.Setpoint, in.InletC, ambient)
		}

		if !wantsEngage {
			continue
		}

		if !h.IsVIP {
			sharesPrimary := primaryEngagedIdx == -1 ||
				primaryEngagedIdx == i ||
				h.CompanionIndex == primaryEngagedIdx ||
				s.Sources[primaryEngagedIdx].CompanionIndex == i
			if !sharesPrimary {
				continue
			}
			primaryEngagedIdx = i
		}

		h.Engaged = true
		if err := h.Run(s.Tank, ambient, in.InletC, in.StepMinutes); err != nil {
			s.failed = true
			return errf(NumericFailure, "sim: %v", err)
		}
		if h.DepressesTemperature && h.IsOn {
			anyDepressing = true
		}
	}
	s.lastStepHadDepression = anyDepressing

	outlet := s.Tank.Draw(in.InletC, in.DrawVolumeL)
	lossKJ := s.Tank.ApplyLosses(in.TankAmbientC, in.StepMinutes)
	s.Tank.Conduct(in.StepMinutes)

	s.outletTempC = outlet
	s.standbyLossKWh = lossKJ / 3600
	s.envHeatRemovedKWh = lossKJ / 3600

	if err := s.checkInvariants(); err != nil {
		s.failed = true
		return err
	}
	return nil
}

func (s *Simulation) checkInvariants() error {
	for i, t := range s.Tank.Nodes {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return errf(NumericFailure, "sim: non-finite temperature at node %d", i)
		}
	}
	return nil
}

// RunNSteps runs each input in order, stopping at the first error (the
// results already produced are still returned).
func (s *Simulation) RunNSteps(inputs []StepInput) ([]StepResult, error) {
	results := make([]StepResult, 0, len(inputs))
	for _, in := range inputs {
		if err := s.RunOneStep(in); err != nil {
			return results, err
		}
		results = append(results, StepResult{
			OutletTempC:       s.outletTempC,
			EnvHeatRemovedKWh: s.envHeatRemovedKWh,
			StandbyLossKWh:    s.standbyLossKWh,
		})
	}
	return results, nil
}

// GetTankNodeTemp returns node i's temperature, or Aborted if failed or i
// is out of range.
func (s *Simulation) GetTankNodeTemp(i int) float64 {
	if s.failed || i < 0 || i >= len(s.Tank.Nodes) {
		return Aborted
	}
	return s.Tank.Nodes[i]
}

// GetNthSimTcouple returns the k-th of six equal-height virtual
// thermocouples (averages of N/6 contiguous nodes), or Aborted on failure
// or an out-of-range index.
func (s *Simulation) GetNthSimTcouple(k int) float64 {
	if s.failed || k < 0 || k >= virtualThermocoupleCount {
		return Aborted
	}
	n := len(s.Tank.Nodes)
	group := n / virtualThermocoupleCount
	if group < 1 {
		return Aborted
	}
	var sum float64
	for i := 0; i < group; i++ {
		sum += s.Tank.Nodes[k*group+i]
	}
	return sum / float64(group)
}

// GetOutletTemp returns the most recent step's volume-weighted outlet
// temperature.
func (s *Simulation) GetOutletTemp() float64 {
	if s.failed {
		return Aborted
	}
	return s.outletTempC
}

// GetEnergyRemovedFromEnvironment returns the most recent step's
// tank-to-ambient heat loss, in kWh.
func (s *Simulation) GetEnergyRemovedFromEnvironment() float64 {
	if s.failed {
		return Aborted
	}
	return s.envHeatRemovedKWh
}

// GetStandbyLosses returns the most recent step's standby loss, in kWh.
func (s *Simulation) GetStandbyLosses() float64 {
	if s.failed {
		return Aborted
	}
	return s.standbyLossKWh
}

func (s *Simulation) source(i int) (*heatsource.HeatSource, bool) {
	if s.failed || i < 0 || i >= len(s.Sources) {
		return nil, false
	}
	return s.Sources[i], true
}

// GetNthHeatSourceEnergyInput returns heat source i's electrical input
// energy for the most recent step, in kWh.
func (s *Simulation) GetNthHeatSourceEnergyInput(i int) float64 {
	h, ok := s.source(i)
	if !ok {
		return Aborted
	}
	return h.EnergyInputKWh
}

// GetNthHeatSourceEnergyOutput returns heat source i's thermal output
// energy for the most recent step, in kWh.
func (s *Simulation) GetNthHeatSourceEnergyOutput(i int) float64 {
	h, ok := s.source(i)
	if !ok {
		return Aborted
	}
	return h.EnergyOutputKWh
}

// GetNthHeatSourceRunTime returns heat source i's runtime for the most
// recent step, in minutes.
func (s *Simulation) GetNthHeatSourceRunTime(i int) float64 {
	h, ok := s.source(i)
	if !ok {
		return Aborted
	}
	return h.RuntimeMin
}

// IsNthHeatSourceRunning reports whether heat source i ran during the most
// recent step.
func (s *Simulation) IsNthHeatSourceRunning(i int) bool {
	h, ok := s.source(i)
	if !ok {
		return false
	}
	return h.IsOn
}

// GetSoCFraction returns the tank's current state of charge: the fraction
// of nodes' useful energy above tempMinUsefulC, referenced to mainsC (or to
// inletC if mainsC is nil).
func (s *Simulation) GetSoCFraction(tempMinUsefulC float64, mainsC *float64, inletC float64) float64 {
	if s.failed {
		return Aborted
	}
	mains := inletC
	if mainsC != nil {
		mains = *mainsC
	}
	return logic.Fraction(s.Tank.Nodes, mains, tempMinUsefulC)
}
