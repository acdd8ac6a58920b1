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

// Package preset builds ready-to-run simulations for a small catalog of
// named configurations and for the two parametric constructors
// (a bare resistance tank, and a generic 3-source integrated heat pump)
// the external interface exposes. This is a minimal registry, not the full
// model-specific coefficient catalog; it exists so initPreset and the
// parametric initializers have something real to build.
package preset

import (
	"fmt"

	"thermtank/internal/heatsource"
	"thermtank/internal/logic"
	"thermtank/internal/perfmap"
	"thermtank/internal/sim"
	"thermtank/internal/tank"
	"thermtank/internal/units"
)

// ID names one of the built-in preset configurations.
type ID string

const (
	RestankRealistic ID = "restankRealistic"
	BasicIntegrated  ID = "basicIntegrated"
	ExternalTest     ID = "externalTest"
)

// maxOutletR134aC is the practical high-temperature limit for an R134a
// condenser loop; the exact refrigerant-specific constant this preset
// catalog is grounded on wasn't available, so this stands in for it.
const maxOutletR134aC = 60.0

func evenCondensity(nodes ...int) [12]float64 {
	var c [12]float64
	w := 1.0 / float64(len(nodes))
	for _, n := range nodes {
		c[n] = w
	}
	return c
}

// quadraticFromFahrenheitCondenser rebases a quadratic originally defined
// against a Fahrenheit condenser temperature (T_F = 1.8*Tc + 32) onto a
// Celsius input, so perfmap.Quadratic.Eval can be called directly with the
// engine's Celsius node temperatures.
func quadraticFromFahrenheitCondenser(c0, c1, c2 float64) perfmap.Quadratic {
	return perfmap.Quadratic{
		C0: c0 + 32*c1 + 1024*c2,
		C1: 1.8*c1 + 115.2*c2,
		C2: 3.24 * c2,
	}
}

func geTier1PerfMap() *perfmap.ListMap {
	return &perfmap.ListMap{
		Anchors: []perfmap.ListAnchor{
			{
				AirTempC: units.FToC(47),
				Power:    quadraticFromFahrenheitCondenser(0.290*1000, 0.00159*1000, 0.00000107*1000),
				COP:      quadraticFromFahrenheitCondenser(4.49, -0.0187, -0.0000133),
			},
			{
				AirTempC: units.FToC(67),
				Power:    quadraticFromFahrenheitCondenser(0.375*1000, 0.00121*1000, 0.00000216*1000),
				COP:      quadraticFromFahrenheitCondenser(5.60, -0.0252, 0.00000254),
			},
		},
	}
}

func namedLogic(name logic.NamedShorthand, decisionC float64, cmp logic.Comparator) logic.Predicate {
	w, err := logic.NewNamed(name, decisionC, cmp)
	if err != nil {
		panic(fmt.Sprintf("preset: built-in shorthand %q rejected: %v", name, err))
	}
	return logic.Predicate{WeightedNode: &w}
}

// restankRealistic builds a two-element resistance tank: a VIP top element
// backed by a bottom element, grounded on HPWHinit_presets'
// MODELS_restankRealistic branch.
func restankRealistic() *sim.Simulation {
	tk, err := tank.New(12, units.GalToL(50), 10, units.FToC(127), false)
	if err != nil {
		panic(fmt.Sprintf("preset: restankRealistic: %v", err))
	}
	tk.ResetToSetpoint()

	top := heatsource.New("resistive top", heatsource.Resistive)
	top.CapacityKW = 4.5
	top.Condensity = evenCondensity(9)
	top.MinAmbientC, top.MaxAmbientC = -50, 100
	top.IsVIP = true
	top.TurnOnLogic = []logic.Predicate{namedLogic(logic.TopThird, units.DeltaFToC(20), logic.LessOrEqual)}

	bottom := heatsource.New("resistive bottom", heatsource.Resistive)
	bottom.CapacityKW = 4.5
	bottom.Condensity = evenCondensity(0)
	bottom.MinAmbientC, bottom.MaxAmbientC = -50, 100
	bottom.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(20), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(15), logic.LessOrEqual),
	}

	top.FollowedByIndex = 1

	return sim.New(tk, []*heatsource.HeatSource{top, bottom})
}

// basicIntegrated builds a 3-source integrated heat pump water heater: a VIP
// top resistor, a wrapped GE-tier-1 compressor, and a backup bottom
// resistor, grounded on HPWHinit_presets' MODELS_basicIntegrated branch.
func basicIntegrated() *sim.Simulation {
	tk, err := tank.New(12, 120, 10, 50, false)
	if err != nil {
		panic(fmt.Sprintf("preset: basicIntegrated: %v", err))
	}
	tk.ResetToSetpoint()

	top := heatsource.New("resistive top", heatsource.Resistive)
	top.CapacityKW = 4.5
	top.Condensity = evenCondensity(9)
	top.MinAmbientC, top.MaxAmbientC = -50, 100
	top.IsVIP = true
	top.TurnOnLogic = []logic.Predicate{namedLogic(logic.TopThird, units.DeltaFToC(20), logic.LessOrEqual)}

	compressor := heatsource.New("compressor", heatsource.WrappedCompressor)
	compressor.Condensity = evenCondensity(0, 1, 2, 3, 4, 5)
	compressor.PerfMap = geTier1PerfMap()
	compressor.MinAmbientC = 0
	compressor.MaxAmbientC = units.FToC(120)
	compressor.Hysteresis = units.DeltaFToC(4)
	compressor.MaxSetpointC = maxOutletR134aC
	compressor.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(20), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(15), logic.LessOrEqual),
	}

	bottom := heatsource.New("resistive bottom", heatsource.Resistive)
	bottom.CapacityKW = 4.5
	bottom.Condensity = evenCondensity(0)
	bottom.MinAmbientC, bottom.MaxAmbientC = -50, 100
	bottom.Hysteresis = units.DeltaFToC(4)
	bottom.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(20), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(15), logic.LessOrEqual),
	}

	// index order matches priority: top, compressor, bottom
	top.FollowedByIndex = 1
	compressor.FollowedByIndex = 2
	compressor.BackupIndex = 2
	bottom.BackupIndex = 1

	return sim.New(tk, []*heatsource.HeatSource{top, compressor, bottom})
}

// externalTest builds a single-pass external-loop compressor over a finely
// noded tank, grounded on HPWHinit_presets' MODELS_externalTest branch.
func externalTest() *sim.Simulation {
	tk, err := tank.New(96, 120, 0, 50, false)
	if err != nil {
		panic(fmt.Sprintf("preset: externalTest: %v", err))
	}
	tk.ResetToSetpoint()

	compressor := heatsource.New("external compressor", heatsource.ExternalLoop)
	compressor.Condensity = evenCondensity(0)
	compressor.PerfMap = geTier1PerfMap()
	compressor.MinAmbientC = -50
	compressor.MaxAmbientC = units.FToC(120)
	compressor.Hysteresis = 0
	compressor.MaxSetpointC = maxOutletR134aC
	compressor.InletNode = 0
	compressor.FlowLPerS = 0 // single-pass implicit flow
	compressor.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(20), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(15), logic.LessOrEqual),
	}
	compressor.ShutOffLogic = []logic.Predicate{namedLogic(logic.TopNodeMaxTemp, units.DeltaFToC(20), logic.GreaterOrEqual)}

	return sim.New(tk, []*heatsource.HeatSource{compressor})
}

// Init builds a new simulation from one of the built-in preset IDs.
func Init(id ID) (*sim.Simulation, error) {
	switch id {
	case RestankRealistic:
		return restankRealistic(), nil
	case BasicIntegrated:
		return basicIntegrated(), nil
	case ExternalTest:
		return externalTest(), nil
	default:
		return nil, fmt.Errorf("preset: unknown preset id %q", id)
	}
}

// InitResistance builds a 1- or 2-element resistance tank. A zero
// upperPowerW omits the top element entirely (a single bottom element
// carries the full load), matching HPWHinit_resTank's behavior; a negative
// upperPowerW is rejected with an error.
// The tank UA is back-solved from the nameplate energy factor using the
// same regression HPWHinit_resTank uses.
func InitResistance(volumeL, energyFactor, upperPowerW, lowerPowerW float64) (*sim.Simulation, error) {
	if lowerPowerW < 550 {
		return nil, fmt.Errorf("preset: lower element power %.1fW is below the 550W minimum this regression supports", lowerPowerW)
	}
	if upperPowerW < 0 {
		return nil, fmt.Errorf("preset: negative upper element power %.1fW", upperPowerW)
	}
	if energyFactor <= 0 {
		return nil, fmt.Errorf("preset: energy factor must be positive, got %.4f", energyFactor)
	}

	tk, err := tank.New(12, volumeL, resistanceTankUA(energyFactor, lowerPowerW), units.FToC(127), false)
	if err != nil {
		return nil, fmt.Errorf("preset: %w", err)
	}
	tk.ResetToSetpoint()

	bottom := heatsource.New("resistive bottom", heatsource.Resistive)
	bottom.CapacityKW = lowerPowerW / 1000
	bottom.Condensity = evenCondensity(0)
	bottom.MinAmbientC, bottom.MaxAmbientC = -50, 100
	bottom.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(40), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(10), logic.LessOrEqual),
	}

	if upperPowerW <= 0 {
		return sim.New(tk, []*heatsource.HeatSource{bottom}), nil
	}

	top := heatsource.New("resistive top", heatsource.Resistive)
	top.CapacityKW = upperPowerW / 1000
	top.Condensity = evenCondensity(8)
	top.MinAmbientC, top.MaxAmbientC = -50, 100
	top.IsVIP = true
	top.TurnOnLogic = []logic.Predicate{namedLogic(logic.TopThird, units.DeltaFToC(20), logic.LessOrEqual)}
	top.FollowedByIndex = 1

	return sim.New(tk, []*heatsource.HeatSource{top, bottom}), nil
}

// resistanceTankUA back-solves tank UA (kJ/(h*C)) from a nameplate energy
// factor and lower-element wattage, following the regression
// HPWHinit_resTank applies (worked in the same BTU/hr and BTU/(hr*F)
// intermediates, then converted to SI).
func resistanceTankUA(energyFactor, lowerPowerW float64) float64 {
	const recoveryEfficiency = 0.98
	lowerPowerBTUperHr := units.KWhToBTU(lowerPowerW/1000) // W treated as a rate, so kWh->BTU gives BTU/hr
	numerator := (1.0 / energyFactor) - (1.0 / recoveryEfficiency)
	denominator := 67.5 * ((24.0 / 41094.0) - 1.0/(recoveryEfficiency*lowerPowerBTUperHr))
	uaBTUperHrF := numerator / denominator
	// UAf_TO_UAc: BTU/(hr*F) -> kJ/(hr*C), a 1.8 F-per-C scale combined with
	// the 1.055 kJ-per-BTU conversion.
	uaKJperHrC := uaBTUperHrF * 1.055 * 1.8
	if uaKJperHrC < 0 {
		return 0
	}
	return uaKJperHrC
}

// InitGeneric builds a 3-source integrated heat pump water heater
// parameterized by tank volume, energy factor, and the ambient-temperature
// threshold below which the backup resistance element takes over, using the
// GE tier-1 performance map as its compressor characteristic (the same
// coefficients basicIntegrated uses; a true generic model would fit its own
// curve to the energy factor, which is out of this registry's scope).
func InitGeneric(volumeL, energyFactor, resistanceUseC float64) (*sim.Simulation, error) {
	if energyFactor <= 0 {
		return nil, fmt.Errorf("preset: energy factor must be positive, got %.4f", energyFactor)
	}

	tk, err := tank.New(12, volumeL, resistanceTankUA(energyFactor, 4500), units.FToC(127), true)
	if err != nil {
		return nil, fmt.Errorf("preset: %w", err)
	}
	tk.ResetToSetpoint()

	top := heatsource.New("resistive top", heatsource.Resistive)
	top.CapacityKW = 4.5
	top.Condensity = evenCondensity(9)
	top.MinAmbientC, top.MaxAmbientC = -50, 100
	top.IsVIP = true
	top.TurnOnLogic = []logic.Predicate{namedLogic(logic.TopThird, units.DeltaFToC(20), logic.LessOrEqual)}

	compressor := heatsource.New("compressor", heatsource.WrappedCompressor)
	compressor.Condensity = evenCondensity(0, 1, 2, 3, 4, 5)
	compressor.PerfMap = geTier1PerfMap()
	compressor.MinAmbientC = resistanceUseC
	compressor.MaxAmbientC = units.FToC(120)
	compressor.Hysteresis = units.DeltaFToC(4)
	compressor.MaxSetpointC = maxOutletR134aC
	compressor.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(20), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(15), logic.LessOrEqual),
	}

	bottom := heatsource.New("resistive bottom", heatsource.Resistive)
	bottom.CapacityKW = 4.5
	bottom.Condensity = evenCondensity(0)
	bottom.MinAmbientC, bottom.MaxAmbientC = -50, 100
	bottom.Hysteresis = units.DeltaFToC(4)
	bottom.TurnOnLogic = []logic.Predicate{
		namedLogic(logic.BottomThird, units.DeltaFToC(20), logic.LessOrEqual),
		namedLogic(logic.Standby, units.DeltaFToC(15), logic.LessOrEqual),
	}

	top.FollowedByIndex = 1
	compressor.FollowedByIndex = 2
	compressor.BackupIndex = 2
	bottom.BackupIndex = 1

	return sim.New(tk, []*heatsource.HeatSource{top, compressor, bottom}), nil
}
