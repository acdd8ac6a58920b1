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

// Package tank implements the stratified-node tank model: draw displacement,
// condensity-weighted heat injection, inter-node conduction, tank-to-ambient
// loss, and the mix-down pass that keeps the node profile monotonic with
// height.
package tank

import (
	"fmt"
	"math"
)

const (
	densityWaterKgPerL  = 0.998
	cpWaterKJPerKgC     = 4.181
	inversionTolC       = 1e-6
	nodeConductPerMinute = 0.03 // fraction of adjacent-node dT exchanged per minute
	maxCourantNumber     = 0.5
)

// Tank holds the per-node temperature profile and the scalar invariants
// describing a stratified storage tank.
type Tank struct {
	Nodes     []float64 // °C, index 0 is the bottom node
	VolumeL   float64
	UAkJPerHrC float64
	Setpoint  float64 // °C
	MixOnDraw bool

	// UniformLoss, if true, apportions ambient loss equally across nodes
	// instead of weighting by (T[i] - ambient).
	UniformLoss bool
}

// New builds a tank with every node at setpoint. numNodes must be a
// positive multiple of 12.
func New(numNodes int, volumeL, uaKJPerHrC, setpoint float64, mixOnDraw bool) (*Tank, error) {
	if numNodes <= 0 || numNodes%12 != 0 {
		return nil, fmt.Errorf("tank: numNodes must be a positive multiple of 12, got %d", numNodes)
	}
	if volumeL < 0 {
		return nil, fmt.Errorf("tank: volume must be non-negative, got %v", volumeL)
	}
	t := &Tank{
		Nodes:      make([]float64, numNodes),
		VolumeL:    volumeL,
		UAkJPerHrC: uaKJPerHrC,
		Setpoint:   setpoint,
		MixOnDraw:  mixOnDraw,
	}
	t.ResetToSetpoint()
	return t, nil
}

// ResetToSetpoint sets every node to the tank's setpoint.
func (t *Tank) ResetToSetpoint() {
	for i := range t.Nodes {
		t.Nodes[i] = t.Setpoint
	}
}

// NumNodes returns the node count.
func (t *Tank) NumNodes() int { return len(t.Nodes) }

// nodeVolumeL is the volume represented by a single node.
func (t *Tank) nodeVolumeL() float64 {
	return t.VolumeL / float64(len(t.Nodes))
}

// NodeCapacityKJperC is the thermal capacity of one node, in kJ per °C.
func (t *Tank) NodeCapacityKJperC() float64 {
	return cpWaterKJPerKgC * densityWaterKgPerL * t.nodeVolumeL()
}

// AvgTemp returns the unweighted mean of all node temperatures.
func (t *Tank) AvgTemp() float64 {
	var sum float64
	for _, v := range t.Nodes {
		sum += v
	}
	return sum / float64(len(t.Nodes))
}

// EnthalpyKJ returns the tank's total thermal energy relative to 0°C,
// Cp*rho*(V/N)*sum(T[i]).
func (t *Tank) EnthalpyKJ() float64 {
	cap := t.NodeCapacityKJperC()
	var sum float64
	for _, v := range t.Nodes {
		sum += v
	}
	return cap * sum
}

// Draw displaces drawVolumeL liters through the tank: cold water (inletT)
// enters the bottom, an equal volume exits the top. It proceeds in
// fractional-node increments so drawVolumeL need not be a multiple of the
// node volume. It returns the volume-weighted mean outlet temperature, or 0
// when drawVolumeL is 0. If MixOnDraw is set, the bottom third (floor(N/3)
// nodes) is averaged to a single temperature afterward.
func (t *Tank) Draw(inletT, drawVolumeL float64) float64 {
	if drawVolumeL <= 0 {
		return 0
	}
	n := len(t.Nodes)
	nodeVol := t.nodeVolumeL()

	var outletNum, outletDen float64
	remaining := drawVolumeL
	for remaining > 1e-12 {
		step := math.Min(remaining, nodeVol)
		frac := step / nodeVol

		outletNum += step * t.Nodes[n-1]
		outletDen += step

		for i := n - 1; i > 0; i-- {
			t.Nodes[i] = t.Nodes[i]*(1-frac) + t.Nodes[i-1]*frac
		}
		t.Nodes[0] = t.Nodes[0]*(1-frac) + inletT*frac

		remaining -= step
	}

	if t.MixOnDraw {
		t.mixBottomThird()
	}
	t.MixDown()

	if outletDen <= 0 {
		return 0
	}
	return outletNum / outletDen
}

// InsertTop displaces volumeL liters through the tank in the opposite
// direction of Draw: heated water (insertT) enters the top, an equal volume
// exits the bottom, and the column in between shifts down. This is the
// return path for an external-loop heat source, which draws cool water from
// the tank, heats it outside the tank, and returns it above rather than
// below the existing column. It proceeds in fractional-node increments and
// returns the volume-weighted mean temperature of the water that exited the
// bottom (0 when volumeL is 0).
func (t *Tank) InsertTop(insertT, volumeL float64) float64 {
	if volumeL <= 0 {
		return 0
	}
	n := len(t.Nodes)
	nodeVol := t.nodeVolumeL()

	var exitNum, exitDen float64
	remaining := volumeL
	for remaining > 1e-12 {
		step := math.Min(remaining, nodeVol)
		frac := step / nodeVol

		exitNum += step * t.Nodes[0]
		exitDen += step

		for i := 0; i < n-1; i++ {
			t.Nodes[i] = t.Nodes[i]*(1-frac) + t.Nodes[i+1]*frac
		}
		t.Nodes[n-1] = t.Nodes[n-1]*(1-frac) + insertT*frac

		remaining -= step
	}

	t.MixDown()

	if exitDen <= 0 {
		return 0
	}
	return exitNum / exitDen
}

// mixBottomThird averages floor(N/3) nodes from the bottom to one common
// temperature. The node count is explicitly floor(N/3), not N/3 rounded or
// a fixed fraction of 12, so it scales for N > 12.
func (t *Tank) mixBottomThird() {
	n := len(t.Nodes)
	count := n / 3
	if count < 1 {
		return
	}
	var sum float64
	for i := 0; i < count; i++ {
		sum += t.Nodes[i]
	}
	avg := sum / float64(count)
	for i := 0; i < count; i++ {
		t.Nodes[i] = avg
	}
}

// MixDown sweeps bottom-to-top and merges any inverted (upper cooler than
// lower) contiguous run into a common average, repeating until the profile
// is monotonically non-decreasing with height.
func (t *Tank) MixDown() {
	n := len(t.Nodes)
	for i := 0; i < n-1; {
		if t.Nodes[i] <= t.Nodes[i+1]+inversionTolC {
			i++
			continue
		}

		lo, hi := i, i+1
		avg := (t.Nodes[lo] + t.Nodes[hi]) / 2
		for {
			grew := false
			if lo > 0 && t.Nodes[lo-1] > avg+inversionTolC {
				lo--
				avg = regionAvg(t.Nodes, lo, hi)
				grew = true
			}
			if hi < n-1 && avg > t.Nodes[hi+1]+inversionTolC {
				hi++
				avg = regionAvg(t.Nodes, lo, hi)
				grew = true
			}
			if !grew {
				break
			}
		}
		for k := lo; k <= hi; k++ {
			t.Nodes[k] = avg
		}
		i = 0 // a merge can ripple downward; rescan from the bottom
	}
}

func regionAvg(nodes []float64, lo, hi int) float64 {
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += nodes[i]
	}
	return sum / float64(hi-lo+1)
}

// ApplyLosses removes UA*(Tavg-ambient)*(minutes/60) kJ of heat to the
// ambient over minutes, apportioned across nodes in proportion to
// (T[i]-ambient) unless UniformLoss is set. It returns the heat lost in kJ
// (positive when the tank is warmer than ambient).
func (t *Tank) ApplyLosses(ambientT, minutes float64) float64 {
	if t.UAkJPerHrC == 0 || minutes <= 0 {
		return 0
	}
	lossKJ := t.UAkJPerHrC * (t.AvgTemp() - ambientT) * (minutes / 60.0)
	if lossKJ == 0 {
		return 0
	}

	nodeCap := t.NodeCapacityKJperC()
	n := len(t.Nodes)

	if t.UniformLoss {
		per := lossKJ / float64(n)
		for i := range t.Nodes {
			t.Nodes[i] -= per / nodeCap
		}
		t.MixDown()
		return lossKJ
	}

	weights := make([]float64, n)
	var sumW float64
	for i, v := range t.Nodes {
		w := v - ambientT
		weights[i] = w
		sumW += w
	}
	if sumW == 0 {
		for i := range weights {
			weights[i] = 1
		}
		sumW = float64(n)
	}
	for i := range t.Nodes {
		share := lossKJ * weights[i] / sumW
		t.Nodes[i] -= share / nodeCap
	}
	t.MixDown()
	return lossKJ
}

// Conduct applies a 1-D explicit (forward-Euler) conduction step across
// minutes of elapsed time, subdividing into sub-steps so the per-sub-step
// Courant number never exceeds 0.5.
func (t *Tank) Conduct(minutes float64) {
	n := len(t.Nodes)
	if n < 2 || minutes <= 0 {
		return
	}

	subSteps := int(math.Ceil(minutes * nodeConductPerMinute / maxCourantNumber))
	if subSteps < 1 {
		subSteps = 1
	}
	dtSub := minutes / float64(subSteps)
	r := nodeConductPerMinute * dtSub

	next := make([]float64, n)
	for s := 0; s < subSteps; s++ {
		next[0] = t.Nodes[0] + r*(t.Nodes[1]-t.Nodes[0])
		next[n-1] = t.Nodes[n-1] + r*(t.Nodes[n-2]-t.Nodes[n-1])
		for i := 1; i < n-1; i++ {
			next[i] = t.Nodes[i] + r*(t.Nodes[i+1]-2*t.Nodes[i]+t.Nodes[i-1])
		}
		copy(t.Nodes, next)
	}
	t.MixDown()
}

// AddHeatAboveNode deposits capKJ kilojoules starting at node, raising the
// node (and any already-equal nodes above it) together. Once heating the
// group would make it match the temperature of the next node up, that node
// is folded into the group and heating continues upward ("plug rises, then
// spills"). At the top of the tank the rise is capped at the tank setpoint.
// It returns the energy actually delivered and whether the heated group
// reached the setpoint (delivery stopped early).
func (t *Tank) AddHeatAboveNode(node int, capKJ float64) (deliveredKJ float64, reachedSetpoint bool) {
	n := len(t.Nodes)
	if node < 0 || node >= n || capKJ <= 0 {
		return 0, false
	}
	nodeCap := t.NodeCapacityKJperC()
	remaining := capKJ
	lo := node

	for remaining > 1e-12 {
		hi := lo
		for hi+1 < n && t.Nodes[hi+1] <= t.Nodes[lo]+inversionTolC {
			hi++
		}
		groupSize := float64(hi - lo + 1)

		if hi == n-1 {
			maxDT := t.Setpoint - t.Nodes[lo]
			if maxDT <= 0 {
				return capKJ - remaining, true
			}
			maxEnergy := maxDT * nodeCap * groupSize
			if remaining <= maxEnergy {
				dT := remaining / (nodeCap * groupSize)
				for i := lo; i <= hi; i++ {
					t.Nodes[i] += dT
				}
				return capKJ, false
			}
			for i := lo; i <= hi; i++ {
				t.Nodes[i] = t.Setpoint
			}
			remaining -= maxEnergy
			return capKJ - remaining, true
		}

		dTtoNext := t.Nodes[hi+1] - t.Nodes[lo]
		energyToNext := dTtoNext * nodeCap * groupSize
		if remaining < energyToNext {
			dT := remaining / (nodeCap * groupSize)
			for i := lo; i <= hi; i++ {
				t.Nodes[i] += dT
			}
			remaining = 0
			break
		}
		for i := lo; i <= hi; i++ {
			t.Nodes[i] = t.Nodes[hi+1]
		}
		remaining -= energyToNext
	}
	return capKJ - remaining, false
}

// DistributeCondensity resamples a length-12 condensity vector onto the
// tank's N nodes, returning a length-N vector of fractions that still sums
// to 1 (within floating point tolerance). Each of the 12 logical slots maps
// to exactly N/12 contiguous tank nodes, since N is required to be a
// multiple of 12.
func (t *Tank) DistributeCondensity(condensity [12]float64) []float64 {
	n := len(t.Nodes)
	perSlot := n / 12
	out := make([]float64, n)
	for slot := 0; slot < 12; slot++ {
		share := condensity[slot] / float64(perSlot)
		base := slot * perSlot
		for i := 0; i < perSlot; i++ {
			out[base+i] = share
		}
	}
	return out
}
