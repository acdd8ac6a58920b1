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

// Package config loads a rating run's tank, heat-source, and service
// configuration from YAML, translating it into the internal/tank,
// internal/heatsource and internal/logic types a Simulation is built from.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"thermtank/internal/heatsource"
	"thermtank/internal/logic"
	"thermtank/internal/perfmap"
	"thermtank/internal/preset"
	"thermtank/internal/sim"
	"thermtank/internal/tank"
)

// RunConfig is the top-level YAML document for `simrun run`.
type RunConfig struct {
	// Preset, if set, selects a built-in preset (see internal/preset) and
	// Tank/Sources below are ignored.
	Preset string `yaml:"preset,omitempty"`

	Tank    TankConfig      `yaml:"tank,omitempty"`
	Sources []SourceConfig  `yaml:"sources,omitempty"`
	Service ServiceConfig   `yaml:"service,omitempty"`
	Draw    DrawConfig      `yaml:"draw,omitempty"`
}

type ServiceConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	StepMinutes float64 `yaml:"step_minutes"`
	LogPath     string `yaml:"log_path"`
}

type DrawConfig struct {
	// ProfileLPerMin maps a minute-of-day to a draw rate; a rating run
	// that is not fed live telemetry cycles through this profile.
	ProfileLPerMin []float64 `yaml:"profile_l_per_min"`
	InletC         float64   `yaml:"inlet_c"`
	TankAmbientC   float64   `yaml:"tank_ambient_c"`
	HeatSourceAmbientC float64 `yaml:"heatsource_ambient_c"`
}

type TankConfig struct {
	Nodes      int     `yaml:"nodes"`
	VolumeL    float64 `yaml:"volume_l"`
	UAkJPerHrC float64 `yaml:"ua_kj_per_hr_c"`
	SetpointC  float64 `yaml:"setpoint_c"`
	MixOnDraw  bool    `yaml:"mix_on_draw"`
	SizeFixed  bool    `yaml:"size_fixed"`
}

type SourceConfig struct {
	Name          string  `yaml:"name"`
	Configuration string  `yaml:"configuration"` // "resistive", "wrapped", "external"
	Condensity    []int   `yaml:"condensity"`     // node indices with equal weight
	CapacityKW    float64 `yaml:"capacity_kw"`    // resistive only
	PerfMap       *PerfMapConfig `yaml:"perf_map,omitempty"`

	HysteresisC  float64 `yaml:"hysteresis_c"`
	MinAmbientC  float64 `yaml:"min_ambient_c"`
	MaxAmbientC  float64 `yaml:"max_ambient_c"`
	MaxSetpointC float64 `yaml:"max_setpoint_c"`
	IsVIP        bool    `yaml:"is_vip"`
	DepressesTemperature bool `yaml:"depresses_temperature"`

	TurnOnLogic  []LogicConfig `yaml:"turn_on_logic"`
	ShutOffLogic []LogicConfig `yaml:"shutoff_logic"`

	BackupName     string `yaml:"backup,omitempty"`
	CompanionName  string `yaml:"companion,omitempty"`
	FollowedByName string `yaml:"followed_by,omitempty"`

	InletNode              int     `yaml:"inlet_node"`
	FlowLPerS              float64 `yaml:"flow_l_per_s"`
	ExternalSubStepMinutes float64 `yaml:"external_substep_minutes"`
}

type LogicConfig struct {
	Named      string  `yaml:"named,omitempty"` // one of logic.NamedShorthand
	DecisionC  float64 `yaml:"decision_c"`
	// LessOrEqual picks the comparator; when omitted, turn-on logic uses <=
	// and shut-off logic uses >=.
	LessOrEqual *bool  `yaml:"less_or_equal,omitempty"`
}

type PerfMapConfig struct {
	// Grid-form performance map, evaluated via perfmap.GridMap. AirTempsC
	// and SetpointTempsC (and optionally InletTempsC, for a 3-axis map)
	// define the grid; PowerW/COP are flattened row-major in that axis
	// order, matching GridMap's own layout.
	AirTempsC      []float64 `yaml:"air_temps_c"`
	SetpointTempsC []float64 `yaml:"setpoint_temps_c"`
	InletTempsC    []float64 `yaml:"inlet_temps_c,omitempty"`
	PowerW         []float64 `yaml:"power_w"`
	COP            []float64 `yaml:"cop"`
}

// Load reads and parses a YAML rating-run config file.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var rc RunConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	rc.applyDefaults()
	return &rc, nil
}

func (rc *RunConfig) applyDefaults() {
	if rc.Service.StepMinutes == 0 {
		rc.Service.StepMinutes = 1
	}
	if rc.Service.HTTPAddr == "" {
		rc.Service.HTTPAddr = ":8085"
	}
	if rc.Service.LogPath == "" {
		rc.Service.LogPath = "var/logs/simrun.log"
	}
	if rc.Draw.InletC == 0 {
		rc.Draw.InletC = 10
	}
	if rc.Draw.TankAmbientC == 0 {
		rc.Draw.TankAmbientC = 20
	}
	if rc.Draw.HeatSourceAmbientC == 0 {
		rc.Draw.HeatSourceAmbientC = rc.Draw.TankAmbientC
	}
	if rc.Tank.Nodes == 0 {
		rc.Tank.Nodes = 12
	}
}

// Build translates the config into a runnable Simulation.
func (rc *RunConfig) Build() (*sim.Simulation, error) {
	if rc.Preset != "" {
		return preset.Init(preset.ID(rc.Preset))
	}

	tk, err := tank.New(rc.Tank.Nodes, rc.Tank.VolumeL, rc.Tank.UAkJPerHrC, rc.Tank.SetpointC, rc.Tank.MixOnDraw)
	if err != nil {
		return nil, fmt.Errorf("config: tank: %w", err)
	}

	sources := make([]*heatsource.HeatSource, 0, len(rc.Sources))
	nameIndex := make(map[string]int, len(rc.Sources))
	for i, sc := range rc.Sources {
		nameIndex[sc.Name] = i
	}

	for _, sc := range rc.Sources {
		hs, err := sc.build(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("config: source %q: %w", sc.Name, err)
		}
		sources = append(sources, hs)
	}

	s := sim.New(tk, sources)
	s.TankSizeFixed = rc.Tank.SizeFixed
	return s, nil
}

func (sc SourceConfig) build(nameIndex map[string]int) (*heatsource.HeatSource, error) {
	cfg, err := parseConfiguration(sc.Configuration)
	if err != nil {
		return nil, err
	}

	hs := &heatsource.HeatSource{
		Name:          sc.Name,
		Configuration: cfg,
		Condensity:    condensityFromIndices(sc.Condensity),
		CapacityKW:    sc.CapacityKW,
		Hysteresis:    sc.HysteresisC,
		MinAmbientC:   sc.MinAmbientC,
		MaxAmbientC:   sc.MaxAmbientC,
		MaxSetpointC:  sc.MaxSetpointC,
		IsVIP:         sc.IsVIP,
		DepressesTemperature: sc.DepressesTemperature,

		BackupIndex:     refOrNone(sc.BackupName, nameIndex),
		CompanionIndex:  refOrNone(sc.CompanionName, nameIndex),
		FollowedByIndex: refOrNone(sc.FollowedByName, nameIndex),

		InletNode:              sc.InletNode,
		FlowLPerS:              sc.FlowLPerS,
		ExternalSubStepMinutes: sc.ExternalSubStepMinutes,
	}

	if sc.PerfMap != nil {
		gm, err := sc.PerfMap.build()
		if err != nil {
			return nil, err
		}
		hs.PerfMap = gm
	}

	for _, lc := range sc.TurnOnLogic {
		pred, err := lc.build(logic.LessOrEqual)
		if err != nil {
			return nil, fmt.Errorf("turn_on_logic: %w", err)
		}
		hs.TurnOnLogic = append(hs.TurnOnLogic, pred)
	}
	for _, lc := range sc.ShutOffLogic {
		pred, err := lc.build(logic.GreaterOrEqual)
		if err != nil {
			return nil, fmt.Errorf("shutoff_logic: %w", err)
		}
		hs.ShutOffLogic = append(hs.ShutOffLogic, pred)
	}

	return hs, nil
}

func parseConfiguration(s string) (heatsource.Configuration, error) {
	switch s {
	case "", "resistive":
		return heatsource.Resistive, nil
	case "wrapped":
		return heatsource.WrappedCompressor, nil
	case "external":
		return heatsource.ExternalLoop, nil
	default:
		return 0, fmt.Errorf("unknown configuration %q", s)
	}
}

func refOrNone(name string, nameIndex map[string]int) int {
	if name == "" {
		return -1
	}
	if idx, ok := nameIndex[name]; ok {
		return idx
	}
	return -1
}

func condensityFromIndices(nodes []int) [12]float64 {
	var c [12]float64
	if len(nodes) == 0 {
		return c
	}
	weight := 1.0 / float64(len(nodes))
	for _, n := range nodes {
		if n >= 0 && n < 12 {
			c[n] = weight
		}
	}
	return c
}

func (lc LogicConfig) build(defaultCmp logic.Comparator) (logic.Predicate, error) {
	cmp := defaultCmp
	if lc.LessOrEqual != nil {
		cmp = logic.GreaterOrEqual
		if *lc.LessOrEqual {
			cmp = logic.LessOrEqual
		}
	}
	wnc, err := logic.NewNamed(logic.NamedShorthand(lc.Named), lc.DecisionC, cmp)
	if err != nil {
		return logic.Predicate{}, err
	}
	return logic.Predicate{WeightedNode: &wnc}, nil
}

func (pc *PerfMapConfig) build() (perfmap.Evaluator, error) {
	if len(pc.AirTempsC) == 0 || len(pc.SetpointTempsC) == 0 {
		return nil, fmt.Errorf("perf_map: air_temps_c and setpoint_temps_c are required")
	}
	axes := []perfmap.Axis{
		{Values: pc.AirTempsC},
		{Values: pc.SetpointTempsC},
	}
	if len(pc.InletTempsC) > 0 {
		axes = append(axes, perfmap.Axis{Values: pc.InletTempsC})
	}
	gm := &perfmap.GridMap{
		Axes:  axes,
		Power: pc.PowerW,
		COP:   pc.COP,
	}
	return gm, nil
}
