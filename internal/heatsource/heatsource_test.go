package heatsource

import (
	"testing"

	"thermtank/internal/logic"
	"thermtank/internal/perfmap"
	"thermtank/internal/tank"
)

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func uniformCondensity(from, to int) [12]float64 {
	var c [12]float64
	n := to - from + 1
	for i := from; i <= to; i++ {
		c[i] = 1.0 / float64(n)
	}
	return c
}

func TestNewHasNoReferences(t *testing.T) {
	h := New("top element", Resistive)
	if h.HasBackup() || h.HasCompanion() || h.HasFollowedBy() {
		t.Error("a freshly constructed heat source should have no references")
	}
}

func TestRunResistiveHeatsTankAndTracksEnergy(t *testing.T) {
	tk, _ := tank.New(12, 150, 0, 52, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}
	h := New("lower element", Resistive)
	h.CapacityKW = 4.5
	h.Condensity = uniformCondensity(0, 0)

	h.RunResistive(tk, 1)

	if !h.IsOn {
		t.Error("expected heat source to report on")
	}
	if h.EnergyInputKWh <= 0 || h.EnergyOutputKWh <= 0 {
		t.Errorf("expected positive energy in/out, got in=%v out=%v", h.EnergyInputKWh, h.EnergyOutputKWh)
	}
	if tk.Nodes[0] <= 20 {
		t.Errorf("bottom node did not warm: %v", tk.Nodes[0])
	}
}

func TestRunResistiveStopsEarlyAtSetpoint(t *testing.T) {
	tk, _ := tank.New(12, 150, 0, 21, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}
	h := New("lower element", Resistive)
	h.CapacityKW = 4500 // absurdly large power so setpoint is hit almost instantly
	h.Condensity = uniformCondensity(0, 0)

	h.RunResistive(tk, 60)

	if h.RuntimeMin >= 60 {
		t.Errorf("expected runtime truncated below 60 min, got %v", h.RuntimeMin)
	}
	if h.RuntimeMin <= 0 {
		t.Error("expected some positive runtime")
	}
}

func listMapFixture() *perfmap.ListMap {
	return &perfmap.ListMap{
		Anchors: []perfmap.ListAnchor{
			{AirTempC: -10, Power: perfmap.Quadratic{C0: 400}, COP: perfmap.Quadratic{C0: 2.0}},
			{AirTempC: 20, Power: perfmap.Quadratic{C0: 500}, COP: perfmap.Quadratic{C0: 3.5}},
		},
	}
}

func TestRunWrappedUsesCondenserWeightedTemp(t *testing.T) {
	tk, _ := tank.New(12, 150, 0, 52, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}
	h := New("compressor", WrappedCompressor)
	h.PerfMap = listMapFixture()
	h.Condensity = uniformCondensity(0, 3)

	if err := h.RunWrapped(tk, 10, 1); err != nil {
		t.Fatal(err)
	}
	if !h.IsOn {
		t.Error("expected compressor to run")
	}
	if h.EnergyOutputKWh <= 0 {
		t.Errorf("expected positive output energy, got %v", h.EnergyOutputKWh)
	}
}

func TestRunWrappedWithoutPerfMapErrors(t *testing.T) {
	tk, _ := tank.New(12, 150, 0, 52, false)
	h := New("compressor", WrappedCompressor)
	if err := h.RunWrapped(tk, 10, 1); err == nil {
		t.Error("expected error when no performance map is configured")
	}
}

func TestRunExternalShiftsColumnAndRespectsShutoff(t *testing.T) {
	tk, _ := tank.New(12, 150, 0, 52, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}
	h := New("external compressor", ExternalLoop)
	h.PerfMap = listMapFixture()
	h.InletNode = 0
	h.ExternalSubStepMinutes = 1

	// shut off once the top node, where the heated return water lands, reaches
	// 25C so the loop terminates quickly
	shutoff, _ := logic.NewNamed(logic.TopNodeMaxTemp, 25, logic.GreaterOrEqual)
	h.ShutOffLogic = []logic.Predicate{{WeightedNode: &shutoff}}

	if err := h.RunExternal(tk, 10, 20, 10); err != nil {
		t.Fatal(err)
	}
	if h.RuntimeMin <= 0 {
		t.Error("expected some runtime before shutoff tripped")
	}
	if h.RuntimeMin >= 10 {
		t.Error("expected shutoff to stop the run before the full step elapsed")
	}
	top := len(tk.Nodes) - 1
	if tk.Nodes[top] <= 20 {
		t.Errorf("top node should have warmed from inserted heated water: %v", tk.Nodes[top])
	}
}

func TestShouldEngageRespectsAmbientWindow(t *testing.T) {
	h := New("compressor", WrappedCompressor)
	h.MinAmbientC = 4
	h.MaxAmbientC = 40
	onLogic, _ := logic.NewNamed(logic.BottomThird, 10, logic.LessOrEqual)
	h.TurnOnLogic = []logic.Predicate{{WeightedNode: &onLogic}}

	nodes := make([]float64, 12)
	for i := range nodes {
		nodes[i] = 10
	}

	if h.ShouldEngage(nodes, 50, 10, 2) {
		t.Error("should not engage below minimum ambient")
	}
	if !h.ShouldEngage(nodes, 50, 10, 20) {
		t.Error("should engage within ambient window when turn-on logic is satisfied")
	}
}

func TestShouldEngageRespectsMaxSetpoint(t *testing.T) {
	h := New("compressor", WrappedCompressor)
	h.MinAmbientC = -100
	h.MaxAmbientC = 100
	h.MaxSetpointC = 50
	onLogic, _ := logic.NewNamed(logic.BottomThird, 10, logic.LessOrEqual)
	h.TurnOnLogic = []logic.Predicate{{WeightedNode: &onLogic}}

	nodes := make([]float64, 12)
	if h.ShouldEngage(nodes, 60, 10, 20) {
		t.Error("should not engage when setpoint exceeds maxSetpoint")
	}
}

func TestResetStepOutputsClearsAccumulators(t *testing.T) {
	h := New("x", Resistive)
	h.IsOn = true
	h.RuntimeMin = 5
	h.EnergyInputKWh = 1
	h.EnergyOutputKWh = 1
	h.ResetStepOutputs()
	if h.IsOn || h.RuntimeMin != 0 || h.EnergyInputKWh != 0 || h.EnergyOutputKWh != 0 {
		t.Error("ResetStepOutputs did not clear all accumulators")
	}
}
