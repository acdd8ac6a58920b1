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

package events

import (
	"thermtank/pkg/eventbus"
	"time"
)

var (
	TopicStepCompleted eventbus.Topic = "step_completed"
	TopicRunFailed     eventbus.Topic = "run_failed"
)

// StepCompleted is published after every successful RunOneStep by the
// rating-run service, carrying enough of the step's outcome for reporting
// consumers (metrics, the live status dashboard) without requiring them to
// hold a reference to the simulation itself.
type StepCompleted struct {
	RunID             string
	StepIndex         int
	Time              time.Time
	OutletTempC       float64
	EnvHeatRemovedKWh float64
	StandbyLossKWh    float64
	TankMeanTempC     float64
	SourcesOn         []bool
}

// RunFailed is published when RunOneStep trips the sticky failure flag.
type RunFailed struct {
	RunID     string
	StepIndex int
	Time      time.Time
	Reason    string
}
