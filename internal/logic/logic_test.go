package logic

import "testing"

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func uniformNodes(n int, t float64) []float64 {
	nodes := make([]float64, n)
	for i := range nodes {
		nodes[i] = t
	}
	return nodes
}

func TestComparatorCompare(t *testing.T) {
	if !LessOrEqual.Compare(5, 5) {
		t.Error("5 <= 5 should hold")
	}
	if LessOrEqual.Compare(6, 5) {
		t.Error("6 <= 5 should not hold")
	}
	if !GreaterOrEqual.Compare(5, 5) {
		t.Error("5 >= 5 should hold")
	}
}

func TestWeightedAverageBottomAndTopSentinels(t *testing.T) {
	nodes := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120}
	w := WeightedNodeCompare{
		Weights:  []NodeWeight{{Node: 0, Weight: 1}},
		Decision: DecisionPoint{ValueC: 15},
		Cmp:      LessOrEqual,
	}
	if !w.Evaluate(nodes, 0, 0) {
		t.Error("bottom node (10) should be <= decision point 15")
	}

	top := WeightedNodeCompare{
		Weights:  []NodeWeight{{Node: 13, Weight: 1}},
		Decision: DecisionPoint{ValueC: 115},
		Cmp:      GreaterOrEqual,
	}
	if !top.Evaluate(nodes, 0, 0) {
		t.Error("top node (120) should be >= decision point 115")
	}
}

func TestWeightedAverageResampling(t *testing.T) {
	// 24 physical nodes, uniform 50, logical slot should average to 50 too
	nodes := uniformNodes(24, 50)
	w := WeightedNodeCompare{
		Weights:  []NodeWeight{{Node: 1, Weight: 1}},
		Decision: DecisionPoint{ValueC: 50},
		Cmp:      LessOrEqual,
	}
	if !w.Evaluate(nodes, 0, 0) {
		t.Error("uniform tank should satisfy <= 50 (with tolerance nudge)")
	}
}

func TestDecisionPointRelativeToSetpoint(t *testing.T) {
	nodes := uniformNodes(12, 40)
	w := WeightedNodeCompare{
		Weights:  []NodeWeight{{Node: 1, Weight: 1}},
		Decision: DecisionPoint{ValueC: 20, RelativeToSetpoint: true}, // setpoint - 20
		Cmp:      LessOrEqual,
	}
	// setpoint 50 => decision point 30; avg 40 > 30, should fail
	if w.Evaluate(nodes, 50, 0) {
		t.Error("40 should not be <= (50-20)=30")
	}
	// setpoint 70 => decision point 50; avg 40 <= 50, should pass
	if !w.Evaluate(nodes, 70, 0) {
		t.Error("40 should be <= (70-20)=50")
	}
}

func TestHysteresisOffsetShiftsDecision(t *testing.T) {
	nodes := uniformNodes(12, 45)
	w := WeightedNodeCompare{
		Weights:  []NodeWeight{{Node: 1, Weight: 1}},
		Decision: DecisionPoint{ValueC: 40},
		Cmp:      LessOrEqual,
	}
	if w.Evaluate(nodes, 0, 0) {
		t.Error("45 should not be <= 40")
	}
	if !w.Evaluate(nodes, 0, 10) {
		t.Error("45 should be <= 40+10 with hysteresis offset")
	}
}

func TestSoCFractionBounds(t *testing.T) {
	nodes := []float64{10, 20, 30, 40, 50, 60}
	frac := Fraction(nodes, 10, 60)
	if frac < 0 || frac > 1 {
		t.Errorf("fraction out of [0,1]: %v", frac)
	}
	allCold := uniformNodes(6, 10)
	if got := Fraction(allCold, 10, 60); !approxEqual(got, 0, 1e-9) {
		t.Errorf("all-mains-temp tank should have SoC 0, got %v", got)
	}
	allHot := uniformNodes(6, 80)
	if got := Fraction(allHot, 10, 60); !approxEqual(got, 1, 1e-9) {
		t.Errorf("fully-charged tank should have SoC 1, got %v", got)
	}
}

func TestSoCCompareUsesInletWhenMainsNil(t *testing.T) {
	nodes := uniformNodes(12, 60)
	s := SoCCompare{MinUsefulTempC: 60, Decision: 0.9, Cmp: GreaterOrEqual}
	if !s.Evaluate(nodes, 10, 0) {
		t.Error("fully-charged tank relative to inlet should satisfy >= 0.9")
	}
}

func TestSoCCompareMainsOverride(t *testing.T) {
	mains := 30.0
	nodes := uniformNodes(12, 60)
	s := SoCCompare{MinUsefulTempC: 60, MainsC: &mains, Decision: 0.9, Cmp: GreaterOrEqual}
	if !s.Evaluate(nodes, 5, 0) {
		t.Error("should use configured mains temp, not the inlet temp passed in")
	}
}

func TestPredicateDispatch(t *testing.T) {
	wn := WeightedNodeCompare{Weights: []NodeWeight{{Node: 1, Weight: 1}}, Decision: DecisionPoint{ValueC: 100}, Cmp: LessOrEqual}
	p := Predicate{WeightedNode: &wn}
	if !p.Evaluate(uniformNodes(12, 50), 0, 0, 0) {
		t.Error("expected weighted-node predicate to pass")
	}

	soc := SoCCompare{MinUsefulTempC: 60, Decision: 0.1, Cmp: GreaterOrEqual}
	p2 := Predicate{SoC: &soc}
	if !p2.Evaluate(uniformNodes(12, 60), 10, 0, 0) {
		t.Error("expected SoC predicate to pass")
	}

	empty := Predicate{}
	if empty.Evaluate(uniformNodes(12, 60), 0, 0, 0) {
		t.Error("empty predicate should evaluate false")
	}
}

func TestNewNamedShorthandsCoverAllNames(t *testing.T) {
	names := []NamedShorthand{
		BottomThird, TopThird, TopSixth, Standby, BottomTwelfth,
		BottomNodeMaxTemp, TopNodeMaxTemp, LargeDraw, LargerDraw,
	}
	for _, name := range names {
		w, err := NewNamed(name, 10, LessOrEqual)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if len(w.Weights) == 0 {
			t.Errorf("%s: expected non-empty weight list", name)
		}
	}
}

func TestNewNamedUnknownReturnsError(t *testing.T) {
	if _, err := NewNamed("not-a-shorthand", 0, LessOrEqual); err == nil {
		t.Error("expected error for unknown shorthand")
	}
}

func TestBottomThirdAndTopThirdDontOverlap(t *testing.T) {
	bottom, _ := NewNamed(BottomThird, 0, LessOrEqual)
	top, _ := NewNamed(TopThird, 0, LessOrEqual)
	seen := map[int]bool{}
	for _, nw := range bottom.Weights {
		seen[nw.Node] = true
	}
	for _, nw := range top.Weights {
		if seen[nw.Node] {
			t.Errorf("node %d present in both bottomThird and topThird", nw.Node)
		}
	}
}
