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

// Package logic implements the heating-logic predicates that decide whether
// a heat source should engage or shut off: weighted-node temperature
// comparisons, state-of-charge comparisons, and the named shorthands
// (bottomThird, topThird, and so on) that expand to one of the two at
// configuration time.
package logic

import "fmt"

// logicNodeSize is the resolution of the logical node projection every
// weighted-node predicate is evaluated against, independent of the tank's
// actual node count.
const logicNodeSize = 12

// tolMinValue nudges a decision point so that a predicate right at its
// boundary resolves in favor of heating rather than short-cycling on
// floating point noise.
const tolMinValue = 1e-3

// Comparator is the relation a predicate tests between the computed value
// and its decision point.
type Comparator int

const (
	LessOrEqual Comparator = iota
	GreaterOrEqual
)

// Compare reports whether value satisfies the comparator against threshold.
func (c Comparator) Compare(value, threshold float64) bool {
	switch c {
	case LessOrEqual:
		return value <= threshold
	case GreaterOrEqual:
		return value >= threshold
	default:
		return false
	}
}

// NodeWeight pairs a logical node index with a weight. Node 0 addresses the
// tank's bottom-most physical node directly; node 13 addresses the top-most
// physical node directly; nodes 1-12 address the corresponding 1/12 slot of
// the tank after resampling onto the logical projection.
type NodeWeight struct {
	Node   int
	Weight float64
}

// DecisionPoint is either an absolute temperature or a delta below the
// tank's current setpoint.
type DecisionPoint struct {
	ValueC             float64
	RelativeToSetpoint bool
}

func (d DecisionPoint) resolve(setpointC float64) float64 {
	if d.RelativeToSetpoint {
		return setpointC - d.ValueC
	}
	return d.ValueC
}

// WeightedNodeCompare is a temperature predicate: a weighted average over
// the logical node projection, compared against a decision point.
type WeightedNodeCompare struct {
	Weights  []NodeWeight
	Decision DecisionPoint
	Cmp      Comparator
}

func resampleTo12(nodes []float64) [logicNodeSize]float64 {
	n := len(nodes)
	density := n / logicNodeSize
	var out [logicNodeSize]float64
	if density < 1 {
		return out
	}
	for slot := 0; slot < logicNodeSize; slot++ {
		var sum float64
		for i := 0; i < density; i++ {
			sum += nodes[slot*density+i]
		}
		out[slot] = sum / float64(density)
	}
	return out
}

func weightedAverage(nodes []float64, weights []NodeWeight) float64 {
	resampled := resampleTo12(nodes)
	var sum, totWeight float64
	n := len(nodes)
	for _, nw := range weights {
		switch nw.Node {
		case 0:
			sum += nodes[0] * nw.Weight
		case logicNodeSize + 1:
			sum += nodes[n-1] * nw.Weight
		default:
			sum += resampled[nw.Node-1] * nw.Weight
		}
		totWeight += nw.Weight
	}
	if totWeight == 0 {
		return 0
	}
	return sum / totWeight
}

// Evaluate reports whether the weighted average of nodes satisfies the
// predicate, with hysteresisOffsetC added to the resolved decision point
// (positive raises the decision point, negative lowers it; the caller
// picks the sign).
func (w WeightedNodeCompare) Evaluate(nodes []float64, setpointC, hysteresisOffsetC float64) bool {
	avg := weightedAverage(nodes, w.Weights)
	decision := w.Decision.resolve(setpointC) + hysteresisOffsetC + tolMinValue
	return w.Cmp.Compare(avg, decision)
}

// SoCCompare is a state-of-charge predicate: the fraction of the tank
// storing useful energy above tempMinUsefulC, compared against a decision
// fraction.
type SoCCompare struct {
	MinUsefulTempC float64
	MainsC         *float64 // nil selects the step's inlet temperature
	Decision       float64  // target fraction, in [0,1]
	Cmp            Comparator
}

// Fraction computes the tank's state of charge: each node contributes the
// fraction of the way its temperature sits between mainsC (0% charge) and
// tempMinUsefulC (100% charge), clamped to [0,1], averaged across nodes.
func Fraction(nodes []float64, mainsC, tempMinUsefulC float64) float64 {
	span := tempMinUsefulC - mainsC
	if span <= 0 {
		return 0
	}
	var sum float64
	for _, t := range nodes {
		f := (t - mainsC) / span
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		sum += f
	}
	return sum / float64(len(nodes))
}

// Evaluate reports whether the tank's current state of charge satisfies the
// predicate. inletC is used as the mains reference unless MainsC overrides
// it. hysteresisOffsetFraction is added to the decision fraction before
// comparing (sign chosen by the caller, as in WeightedNodeCompare).
func (s SoCCompare) Evaluate(nodes []float64, inletC, hysteresisOffsetFraction float64) bool {
	mains := inletC
	if s.MainsC != nil {
		mains = *s.MainsC
	}
	frac := Fraction(nodes, mains, s.MinUsefulTempC)
	decision := s.Decision + hysteresisOffsetFraction
	return s.Cmp.Compare(frac, decision)
}

// Predicate is the closed set of heating-logic variants a heat source's
// turn-on/shut-off logic sets are built from.
type Predicate struct {
	WeightedNode *WeightedNodeCompare
	SoC          *SoCCompare
}

// Evaluate dispatches to whichever variant is populated.
func (p Predicate) Evaluate(nodes []float64, setpointC, inletC, hysteresisOffset float64) bool {
	switch {
	case p.WeightedNode != nil:
		return p.WeightedNode.Evaluate(nodes, setpointC, hysteresisOffset)
	case p.SoC != nil:
		return p.SoC.Evaluate(nodes, inletC, hysteresisOffset)
	default:
		return false
	}
}

// NamedShorthand selects one of the preset node-weight patterns used
// throughout the preset registry instead of a caller-supplied weight list.
type NamedShorthand string

const (
	BottomThird       NamedShorthand = "bottomThird"
	TopThird          NamedShorthand = "topThird"
	TopSixth          NamedShorthand = "topSixth"
	Standby           NamedShorthand = "standby"
	BottomTwelfth     NamedShorthand = "bottomTwelfth"
	BottomNodeMaxTemp NamedShorthand = "bottomNodeMaxTemp"
	TopNodeMaxTemp    NamedShorthand = "topNodeMaxTemp"
	LargeDraw         NamedShorthand = "largeDraw"
	LargerDraw        NamedShorthand = "largerDraw"
)

// weightRange builds a uniform-weight list over logical slots [from, to]
// inclusive (1-indexed, per the 1-12 logical projection).
func weightRange(from, to int) []NodeWeight {
	w := make([]NodeWeight, 0, to-from+1)
	for i := from; i <= to; i++ {
		w = append(w, NodeWeight{Node: i, Weight: 1})
	}
	return w
}

// NewNamed expands a named shorthand and a decision-point value into a
// concrete WeightedNodeCompare, translating the configuration-boundary
// selector string exactly once. cmp is the comparator for this particular
// use (turn-on logic conventionally uses LessOrEqual, shut-off
// GreaterOrEqual, but callers may override either).
func NewNamed(name NamedShorthand, decisionPointC float64, cmp Comparator) (WeightedNodeCompare, error) {
	switch name {
	case BottomThird:
		return WeightedNodeCompare{Weights: weightRange(1, logicNodeSize/3), Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: true}, Cmp: cmp}, nil
	case TopThird:
		return WeightedNodeCompare{Weights: weightRange(logicNodeSize-logicNodeSize/3+1, logicNodeSize), Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: true}, Cmp: cmp}, nil
	case TopSixth:
		return WeightedNodeCompare{Weights: weightRange(logicNodeSize-logicNodeSize/6+1, logicNodeSize), Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: true}, Cmp: cmp}, nil
	case BottomTwelfth:
		return WeightedNodeCompare{Weights: weightRange(1, 1), Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: true}, Cmp: cmp}, nil
	case Standby:
		return WeightedNodeCompare{Weights: []NodeWeight{{Node: logicNodeSize + 1, Weight: 1}}, Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: true}, Cmp: cmp}, nil
	case BottomNodeMaxTemp:
		return WeightedNodeCompare{Weights: []NodeWeight{{Node: 0, Weight: 1}}, Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: false}, Cmp: cmp}, nil
	case TopNodeMaxTemp:
		return WeightedNodeCompare{Weights: []NodeWeight{{Node: logicNodeSize + 1, Weight: 1}}, Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: false}, Cmp: cmp}, nil
	case LargeDraw:
		return WeightedNodeCompare{Weights: weightRange(1, logicNodeSize/3), Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: false}, Cmp: cmp}, nil
	case LargerDraw:
		return WeightedNodeCompare{Weights: weightRange(1, 2*logicNodeSize/3), Decision: DecisionPoint{ValueC: decisionPointC, RelativeToSetpoint: false}, Cmp: cmp}, nil
	default:
		return WeightedNodeCompare{}, fmt.Errorf("logic: unknown named shorthand %q", name)
	}
}
