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

// Package perfmap evaluates heat-source performance maps: input power (W)
// and COP as functions of ambient-air temperature, condenser-water
// temperature, and setpoint. Two representations are supported, list-form
// (quadratic-in-condenser-temp anchors interpolated across air temperature)
// and grid-form (multilinear interpolation over a regular axis grid).
package perfmap

import "fmt"

// ExtrapolationPolicy controls behavior for inputs outside the map's
// defined range.
type ExtrapolationPolicy int

const (
	// ExtrapolateLinear extends the nearest segment's slope.
	ExtrapolateLinear ExtrapolationPolicy = iota
	// ExtrapolateNearest clamps to the boundary anchor/grid line.
	ExtrapolateNearest
)

// Evaluator is a performance map ready to be queried. condenserC is used by
// list-form maps; setpointC and inletC are used by grid-form maps. Callers
// pass whichever values they have; a map ignores the inputs it doesn't use.
type Evaluator interface {
	Evaluate(airC, condenserC, setpointC, inletC float64) (powerW, cop float64, err error)
}

// Quadratic is C0 + C1*x + C2*x^2.
type Quadratic struct {
	C0, C1, C2 float64
}

// Eval returns the quadratic's value at x.
func (q Quadratic) Eval(x float64) float64 {
	return q.C0 + q.C1*x + q.C2*x*x
}

// ListAnchor is one air-temperature point of a list-form map: the input
// power and COP curves (each quadratic in condenser temperature) defined at
// that air temperature.
type ListAnchor struct {
	AirTempC float64
	Power    Quadratic // W
	COP      Quadratic
}

// ListMap is the two-anchor (or more) list-form performance map: at each
// anchor air temperature, input power and COP are quadratic functions of
// condenser temperature; between/beyond anchors, the evaluated values are
// interpolated (or extrapolated) linearly in air temperature.
type ListMap struct {
	Anchors       []ListAnchor // must be sorted ascending by AirTempC
	Extrapolation ExtrapolationPolicy
}

// Evaluate implements Evaluator. setpointC and inletC are unused.
func (m *ListMap) Evaluate(airC, condenserC, _, _ float64) (powerW, cop float64, err error) {
	n := len(m.Anchors)
	if n == 0 {
		return 0, 0, fmt.Errorf("perfmap: list map has no anchors")
	}
	if n == 1 {
		a := m.Anchors[0]
		return a.Power.Eval(condenserC), a.COP.Eval(condenserC), nil
	}

	if airC <= m.Anchors[0].AirTempC {
		return m.edge(0, 1, airC, condenserC)
	}
	if airC >= m.Anchors[n-1].AirTempC {
		return m.edge(n-2, n-1, airC, condenserC)
	}
	for i := 0; i < n-1; i++ {
		lo, hi := m.Anchors[i], m.Anchors[i+1]
		if airC >= lo.AirTempC && airC <= hi.AirTempC {
			t := (airC - lo.AirTempC) / (hi.AirTempC - lo.AirTempC)
			pLo, pHi := lo.Power.Eval(condenserC), hi.Power.Eval(condenserC)
			cLo, cHi := lo.COP.Eval(condenserC), hi.COP.Eval(condenserC)
			return pLo + t*(pHi-pLo), cLo + t*(cHi-cLo), nil
		}
	}
	// unreachable given the bounds checks above
	return m.Anchors[n-1].Power.Eval(condenserC), m.Anchors[n-1].COP.Eval(condenserC), nil
}

// edge handles both interpolation and extrapolation across the segment
// bounded by anchor indices i, j (i < j); when airC falls outside [i,j] the
// configured extrapolation policy governs whether t is clamped to [0,1].
func (m *ListMap) edge(i, j int, airC, condenserC float64) (float64, float64, error) {
	lo, hi := m.Anchors[i], m.Anchors[j]
	t := (airC - lo.AirTempC) / (hi.AirTempC - lo.AirTempC)
	if m.Extrapolation == ExtrapolateNearest {
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
	}
	pLo, pHi := lo.Power.Eval(condenserC), hi.Power.Eval(condenserC)
	cLo, cHi := lo.COP.Eval(condenserC), hi.COP.Eval(condenserC)
	return pLo + t*(pHi-pLo), cLo + t*(cHi-cLo), nil
}

// Axis is one dimension of a grid-form map.
type Axis struct {
	Values      []float64 // strictly ascending
	Extrapolate ExtrapolationPolicy
}

// bracket returns the lower grid index and the fractional position of x
// within [Values[lo], Values[lo+1]]. Fractions outside [0,1] indicate
// linear extrapolation; ExtrapolateNearest clamps them.
func bracket(axis Axis, x float64) (lo int, frac float64) {
	v := axis.Values
	n := len(v)
	if n == 1 {
		return 0, 0
	}
	if x <= v[0] {
		if axis.Extrapolate == ExtrapolateNearest {
			return 0, 0
		}
		return 0, (x - v[0]) / (v[1] - v[0])
	}
	if x >= v[n-1] {
		if axis.Extrapolate == ExtrapolateNearest {
			return n - 2, 1
		}
		return n - 2, (x - v[n-2]) / (v[n-1] - v[n-2])
	}
	for i := 0; i < n-1; i++ {
		if x >= v[i] && x <= v[i+1] {
			return i, (x - v[i]) / (v[i+1] - v[i])
		}
	}
	return n - 2, 1
}

// GridMap is the grid-form performance map: a regular 2-D (T_air,
// T_setpoint) or 3-D (T_air, T_setpoint, T_in) axis grid with flattened,
// row-major (Axes[0] slowest-varying) power and COP tables.
type GridMap struct {
	Axes  []Axis // length 2 or 3, in order (air, setpoint[, inlet])
	Power []float64
	COP   []float64
}

func (g *GridMap) flatIndex(corner []int) int {
	idx := 0
	stride := 1
	for a := len(g.Axes) - 1; a >= 0; a-- {
		idx += corner[a] * stride
		stride *= len(g.Axes[a].Values)
	}
	return idx
}

// Evaluate implements Evaluator. condenserC is unused; setpointC and inletC
// (when a third axis is configured) select the grid coordinate.
func (g *GridMap) Evaluate(airC, _, setpointC, inletC float64) (powerW, cop float64, err error) {
	if len(g.Axes) != 2 && len(g.Axes) != 3 {
		return 0, 0, fmt.Errorf("perfmap: grid map must have 2 or 3 axes, got %d", len(g.Axes))
	}
	coords := []float64{airC, setpointC}
	if len(g.Axes) == 3 {
		coords = append(coords, inletC)
	}

	los := make([]int, len(g.Axes))
	fracs := make([]float64, len(g.Axes))
	for i, axis := range g.Axes {
		lo, frac := bracket(axis, coords[i])
		los[i] = lo
		fracs[i] = frac
	}

	nCorners := 1 << len(g.Axes)
	corner := make([]int, len(g.Axes))
	for mask := 0; mask < nCorners; mask++ {
		weight := 1.0
		skip := false
		for a := range g.Axes {
			bit := (mask >> uint(a)) & 1
			if bit == 1 && len(g.Axes[a].Values) == 1 {
				// a single-value axis has no upper neighbor
				skip = true
				break
			}
			corner[a] = los[a] + bit
			if bit == 1 {
				weight *= fracs[a]
			} else {
				weight *= 1 - fracs[a]
			}
		}
		if skip {
			continue
		}
		idx := g.flatIndex(corner)
		powerW += weight * g.Power[idx]
		cop += weight * g.COP[idx]
	}
	return powerW, cop, nil
}

// DefrostPoint is one vertex of a piecewise-linear defrost derate curve.
type DefrostPoint struct {
	AirTempC float64
	Factor   float64 // fraction of undamaged capacity delivered, typically (0,1]
}

// Defrost describes a compressor's capacity loss to frost buildup and
// cyclic defrost, and an optional auxiliary resistive element that
// activates below a threshold air temperature to offset it.
type Defrost struct {
	WindowLowC, WindowHighC float64 // outside this window, no derate applies
	Points                  []DefrostPoint // sorted ascending by AirTempC

	AuxDrawKW     float64
	AuxThresholdC float64
}

// Apply derates cop by the piecewise-linear factor for airC (capacity =
// power*cop, so scaling cop scales capacity while leaving the compressor's
// electrical draw unchanged) and returns any auxiliary resistive draw that
// applies at this air temperature.
func (d *Defrost) Apply(airC, cop float64) (deratedCOP, auxKW float64) {
	if airC < d.WindowLowC || airC > d.WindowHighC || len(d.Points) == 0 {
		return cop, d.auxDraw(airC)
	}
	return cop * d.factorAt(airC), d.auxDraw(airC)
}

func (d *Defrost) auxDraw(airC float64) float64 {
	if d.AuxDrawKW > 0 && airC < d.AuxThresholdC {
		return d.AuxDrawKW
	}
	return 0
}

func (d *Defrost) factorAt(airC float64) float64 {
	pts := d.Points
	n := len(pts)
	if airC <= pts[0].AirTempC {
		return pts[0].Factor
	}
	if airC >= pts[n-1].AirTempC {
		return pts[n-1].Factor
	}
	for i := 0; i < n-1; i++ {
		lo, hi := pts[i], pts[i+1]
		if airC >= lo.AirTempC && airC <= hi.AirTempC {
			t := (airC - lo.AirTempC) / (hi.AirTempC - lo.AirTempC)
			return lo.Factor + t*(hi.Factor-lo.Factor)
		}
	}
	return pts[n-1].Factor
}
