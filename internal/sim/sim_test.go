package sim

import (
	"testing"

	"thermtank/internal/heatsource"
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

// TestPureStandbyNoLosses mirrors the zero-UA, zero-draw scenario: with UA=0
// every node must be unchanged to high precision and nothing should engage.
func TestPureStandbyNoLosses(t *testing.T) {
	tk, _ := tank.New(12, 189, 0, 52.78, false)
	h := heatsource.New("element", heatsource.Resistive)
	h.CapacityKW = 4.5
	h.Condensity = uniformCondensity(0, 0)
	on, _ := logic.NewNamed(logic.Standby, 10, logic.LessOrEqual)
	h.TurnOnLogic = []logic.Predicate{{WeightedNode: &on}}
	h.MaxAmbientC = 100
	h.MinAmbientC = -50

	s := New(tk, []*heatsource.HeatSource{h})

	in := StepInput{InletC: 10, DrawVolumeL: 0, TankAmbientC: 20, HeatSourceAmbientC: 20, DR: DRAllow, StepMinutes: 1}
	for i := 0; i < 60; i++ {
		if err := s.RunOneStep(in); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	for i, v := range tk.Nodes {
		if !approxEqual(v, 52.78, 1e-6) {
			t.Errorf("node %d drifted to %v with zero UA/draw", i, v)
		}
	}
	if s.GetNthHeatSourceRunTime(0) != 0 {
		t.Errorf("expected no runtime with setpoint already satisfied, got %v", s.GetNthHeatSourceRunTime(0))
	}
}

// TestColdFillOutletTracksInitialSetpoint mirrors the cold-fill scenario:
// a near-tank-volume draw should pull the bottom toward inletT while the
// reported outlet (volume-weighted mean of what left the tank) stays near
// the pre-draw setpoint.
func TestColdFillOutletTracksInitialSetpoint(t *testing.T) {
	tk, _ := tank.New(12, 190, 0, 52.78, false)
	s := New(tk, nil)

	in := StepInput{InletC: 5, DrawVolumeL: 190, TankAmbientC: 20, HeatSourceAmbientC: 20, DR: DRAllow, StepMinutes: 1}
	if err := s.RunOneStep(in); err != nil {
		t.Fatal(err)
	}
	if !approxEqual(tk.Nodes[0], 5, 1) {
		t.Errorf("bottom node = %v, want ~5", tk.Nodes[0])
	}
	if !approxEqual(s.GetOutletTemp(), 52.78, 1) {
		t.Errorf("outlet = %v, want ~52.78", s.GetOutletTemp())
	}
}

// TestResistiveRecoveryVIPRunsAlongsideNonVIP mirrors the two-element
// resistance recovery scenario: a VIP upper element always runs when its
// turn-on logic is satisfied, independent of the non-VIP primary slot.
func TestResistiveRecoveryVIPRunsAlongsideNonVIP(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 52.78, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}

	upper := heatsource.New("upper", heatsource.Resistive)
	upper.CapacityKW = 4.5
	upper.IsVIP = true
	upper.Condensity = uniformCondensity(9, 11)
	upper.MinAmbientC, upper.MaxAmbientC = -50, 100
	upperOn, _ := logic.NewNamed(logic.TopThird, 20, logic.LessOrEqual)
	upper.TurnOnLogic = []logic.Predicate{{WeightedNode: &upperOn}}

	lower := heatsource.New("lower", heatsource.Resistive)
	lower.CapacityKW = 4.5
	lower.Condensity = uniformCondensity(0, 3)
	lower.MinAmbientC, lower.MaxAmbientC = -50, 100
	lowerOn, _ := logic.NewNamed(logic.BottomThird, 20, logic.LessOrEqual)
	lower.TurnOnLogic = []logic.Predicate{{WeightedNode: &lowerOn}}

	s := New(tk, []*heatsource.HeatSource{upper, lower})

	in := StepInput{InletC: 10, DrawVolumeL: 0, TankAmbientC: 20, HeatSourceAmbientC: 20, DR: DRAllow, StepMinutes: 1}
	if err := s.RunOneStep(in); err != nil {
		t.Fatal(err)
	}
	if !s.IsNthHeatSourceRunning(0) {
		t.Error("expected the VIP upper element to run")
	}
	if !s.IsNthHeatSourceRunning(1) {
		t.Error("expected the non-VIP lower element to run too, since VIP engagement doesn't claim the primary slot")
	}
}

// TestNonVIPSourcesShareOnlyOnePrimarySlot mirrors the priority-walk rule
// that non-VIP sources compete for a single primary slot: the first eligible
// one claims it and a second, unrelated one defers.
func TestNonVIPSourcesShareOnlyOnePrimarySlot(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 52.78, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}

	first := heatsource.New("first", heatsource.Resistive)
	first.CapacityKW = 4.5
	first.Condensity = uniformCondensity(0, 3)
	first.MinAmbientC, first.MaxAmbientC = -50, 100
	firstOn, _ := logic.NewNamed(logic.BottomThird, 20, logic.LessOrEqual)
	first.TurnOnLogic = []logic.Predicate{{WeightedNode: &firstOn}}

	second := heatsource.New("second", heatsource.Resistive)
	second.CapacityKW = 4.5
	second.Condensity = uniformCondensity(4, 7)
	second.MinAmbientC, second.MaxAmbientC = -50, 100
	secondOn, _ := logic.NewNamed(logic.BottomThird, 20, logic.LessOrEqual)
	second.TurnOnLogic = []logic.Predicate{{WeightedNode: &secondOn}}

	s := New(tk, []*heatsource.HeatSource{first, second})

	in := StepInput{InletC: 10, DrawVolumeL: 0, TankAmbientC: 20, HeatSourceAmbientC: 20, DR: DRAllow, StepMinutes: 1}
	if err := s.RunOneStep(in); err != nil {
		t.Fatal(err)
	}
	if !s.IsNthHeatSourceRunning(0) {
		t.Error("expected the first non-VIP source to claim the primary slot")
	}
	if s.IsNthHeatSourceRunning(1) {
		t.Error("expected the second non-VIP source to defer since it shares no companion link with the primary")
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

// TestWrappedCompressorColdAmbientDefersToBackup mirrors the cold-ambient
// scenario: a compressor below its minT should never engage, and its
// resistance backup should run instead.
func TestWrappedCompressorColdAmbientDefersToBackup(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 52.78, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}

	compressor := heatsource.New("compressor", heatsource.WrappedCompressor)
	compressor.PerfMap = listMapFixture()
	compressor.Condensity = uniformCondensity(0, 5)
	compressor.MinAmbientC = 4.4
	compressor.MaxAmbientC = 45
	compOn, _ := logic.NewNamed(logic.BottomThird, 20, logic.LessOrEqual)
	compressor.TurnOnLogic = []logic.Predicate{{WeightedNode: &compOn}}
	compressor.BackupIndex = 1

	backup := heatsource.New("backup resistance", heatsource.Resistive)
	backup.CapacityKW = 4.5
	backup.Condensity = uniformCondensity(0, 3)
	backup.MinAmbientC, backup.MaxAmbientC = -50, 100
	backupOn, _ := logic.NewNamed(logic.BottomThird, 20, logic.LessOrEqual)
	backup.TurnOnLogic = []logic.Predicate{{WeightedNode: &backupOn}}

	s := New(tk, []*heatsource.HeatSource{compressor, backup})

	in := StepInput{InletC: 10, DrawVolumeL: 0, TankAmbientC: 2, HeatSourceAmbientC: 2, DR: DRAllow, StepMinutes: 1}
	if err := s.RunOneStep(in); err != nil {
		t.Fatal(err)
	}
	if s.IsNthHeatSourceRunning(0) {
		t.Error("compressor should not engage below its minimum ambient")
	}
	if !s.IsNthHeatSourceRunning(1) {
		t.Error("backup resistance element should engage when the compressor can't")
	}
}

// TestDRBlockKeepsAllSourcesOff mirrors the DR-block scenario.
func TestDRBlockKeepsAllSourcesOff(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 52.78, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 20
	}
	h := heatsource.New("element", heatsource.Resistive)
	h.CapacityKW = 4.5
	h.Condensity = uniformCondensity(0, 3)
	h.MinAmbientC, h.MaxAmbientC = -50, 100
	on, _ := logic.NewNamed(logic.BottomThird, 20, logic.LessOrEqual)
	h.TurnOnLogic = []logic.Predicate{{WeightedNode: &on}}

	s := New(tk, []*heatsource.HeatSource{h})
	in := StepInput{InletC: 10, DrawVolumeL: 0, TankAmbientC: 20, HeatSourceAmbientC: 20, DR: DRBlock, StepMinutes: 1}
	if err := s.RunOneStep(in); err != nil {
		t.Fatal(err)
	}
	if s.IsNthHeatSourceRunning(0) {
		t.Error("DR block should keep every source off")
	}
	if s.GetNthHeatSourceEnergyInput(0) != 0 {
		t.Error("DR block should prevent any energy input")
	}
}

// TestDREngageForcesTopPriority mirrors the DR-engage scenario.
func TestDREngageForcesTopPriority(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 52.78, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = 40
	}
	h := heatsource.New("element", heatsource.Resistive)
	h.CapacityKW = 4.5
	h.Condensity = uniformCondensity(0, 3)
	h.MinAmbientC, h.MaxAmbientC = -50, 100
	// turn-on logic deliberately unsatisfiable (bottom third must fall to
	// 1000 C below setpoint), while the tank is below setpoint so heat can go in
	on, _ := logic.NewNamed(logic.BottomThird, 1000, logic.LessOrEqual)
	h.TurnOnLogic = []logic.Predicate{{WeightedNode: &on}}

	s := New(tk, []*heatsource.HeatSource{h})
	in := StepInput{InletC: 10, DrawVolumeL: 0, TankAmbientC: 20, HeatSourceAmbientC: 20, DR: DREngage, StepMinutes: 1}
	if err := s.RunOneStep(in); err != nil {
		t.Fatal(err)
	}
	if !s.IsNthHeatSourceRunning(0) {
		t.Error("DR engage should force the top-priority eligible source on")
	}
	if s.GetNthHeatSourceEnergyInput(0) <= 0 {
		t.Error("expected positive energy input when DR forces engagement")
	}
}

func TestInvalidInputsRejected(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 52.78, false)
	s := New(tk, nil)

	cases := []StepInput{
		{DrawVolumeL: -1, StepMinutes: 1, TankAmbientC: 20, HeatSourceAmbientC: 20},
		{DrawVolumeL: 0, StepMinutes: 0, TankAmbientC: 20, HeatSourceAmbientC: 20},
		{DrawVolumeL: 0, StepMinutes: 1, TankAmbientC: 200, HeatSourceAmbientC: 20},
		{DrawVolumeL: 0, StepMinutes: 1, TankAmbientC: 20, HeatSourceAmbientC: -200},
	}
	for i, c := range cases {
		if err := s.RunOneStep(c); err == nil {
			t.Errorf("case %d: expected an InputOutOfDomain error", i)
		} else if simErr, ok := err.(*Error); !ok || simErr.Kind != InputOutOfDomain {
			t.Errorf("case %d: expected InputOutOfDomain, got %v", i, err)
		}
	}
}

func TestSetSetpointRejectsAboveMaxSetpoint(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 50, false)
	h := heatsource.New("compressor", heatsource.WrappedCompressor)
	h.MaxSetpointC = 60
	s := New(tk, []*heatsource.HeatSource{h})

	if err := s.SetSetpoint(70); err == nil {
		t.Error("expected rejection for setpoint above maxSetpoint")
	}
	if err := s.SetSetpoint(55); err != nil {
		t.Errorf("unexpected rejection for a valid setpoint: %v", err)
	}
}

func TestSetTankSizeRejectedWhenFixed(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 50, false)
	s := New(tk, nil)
	s.TankSizeFixed = true
	if err := s.SetTankSize(300); err == nil {
		t.Error("expected rejection when tank size is fixed")
	}
}

func TestAccessorsReturnAbortedAfterFailure(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 50, false)
	s := New(tk, nil)
	s.failed = true
	if s.GetTankNodeTemp(0) != Aborted {
		t.Error("expected Aborted after sticky failure")
	}
	if s.GetOutletTemp() != Aborted {
		t.Error("expected Aborted after sticky failure")
	}
	if _, err := s.RunNSteps([]StepInput{{StepMinutes: 1, TankAmbientC: 20, HeatSourceAmbientC: 20}}); err == nil {
		t.Error("expected stepping to fail once the sticky flag is set")
	}
}

func TestGetNthSimTcoupleAverages(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 50, false)
	for i := range tk.Nodes {
		tk.Nodes[i] = float64(i)
	}
	s := New(tk, nil)
	// 12 nodes / 6 thermocouples = 2 nodes per couple
	if got := s.GetNthSimTcouple(0); !approxEqual(got, 0.5, 1e-9) {
		t.Errorf("tcouple 0 = %v, want 0.5", got)
	}
	if got := s.GetNthSimTcouple(5); !approxEqual(got, 10.5, 1e-9) {
		t.Errorf("tcouple 5 = %v, want 10.5", got)
	}
}

func TestResetTankToSetpoint(t *testing.T) {
	tk, _ := tank.New(12, 189, 6, 50, false)
	tk.Nodes[0] = 10
	s := New(tk, nil)
	s.ResetTankToSetpoint()
	for i, v := range tk.Nodes {
		if v != 50 {
			t.Errorf("node %d = %v after reset, want 50", i, v)
		}
	}
}
