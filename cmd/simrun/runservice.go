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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"thermtank/internal/config"
	"thermtank/internal/events"
	"thermtank/internal/metrics"
	"thermtank/internal/sim"
	"thermtank/internal/telemetry"
	"thermtank/pkg/eventbus"
	"thermtank/pkg/logger"
)

// ratingRunService steps a Simulation forward, either against a synthetic
// draw profile or a live telemetry feed, publishing a StepCompleted event
// on the bus after every successful step.
type ratingRunService struct {
	sim    *sim.Simulation
	cfg    *config.RunConfig
	bus    *eventbus.Bus
	feed   *telemetry.Feed
	log    *logger.Logger
	ticker time.Duration

	mu        sync.RWMutex
	stepIndex int
	lastEvent events.StepCompleted
}

func newRatingRunService(s *sim.Simulation, cfg *config.RunConfig, bus *eventbus.Bus, feed *telemetry.Feed) *ratingRunService {
	return &ratingRunService{
		sim:    s,
		cfg:    cfg,
		bus:    bus,
		feed:   feed,
		log:    logger.New("RatingRun"),
		ticker: 20 * time.Millisecond,
	}
}

func (r *ratingRunService) Run(ctx context.Context) {
	r.log.Info("Running rating run %s (step=%.1fmin)", r.sim.ID, r.cfg.Service.StepMinutes)

	ticker := time.NewTicker(r.ticker)
	defer ticker.Stop()

	drawIdx := 0
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Stopped")
			return
		case <-ticker.C:
			in := r.nextInput(&drawIdx)
			if err := r.sim.RunOneStep(in); err != nil {
				r.reportFailure(err)
				return
			}
			r.reportStep()
		}
	}
}

func (r *ratingRunService) nextInput(drawIdx *int) sim.StepInput {
	if r.feed != nil {
		reading := r.feed.Latest()
		return sim.StepInput{
			InletC:             reading.InletC,
			DrawVolumeL:        reading.DrawFlowLPerS * r.cfg.Service.StepMinutes * 60,
			TankAmbientC:       reading.TankAmbientC,
			HeatSourceAmbientC: reading.HeatSourceAmbientC,
			DR:                 sim.DRAllow,
			StepMinutes:        r.cfg.Service.StepMinutes,
		}
	}

	profile := r.cfg.Draw.ProfileLPerMin
	var drawLPerMin float64
	if len(profile) > 0 {
		drawLPerMin = profile[*drawIdx%len(profile)]
		*drawIdx++
	}

	return sim.StepInput{
		InletC:             r.cfg.Draw.InletC,
		DrawVolumeL:        drawLPerMin * r.cfg.Service.StepMinutes,
		TankAmbientC:       r.cfg.Draw.TankAmbientC,
		HeatSourceAmbientC: r.cfg.Draw.HeatSourceAmbientC,
		DR:                 sim.DRAllow,
		StepMinutes:        r.cfg.Service.StepMinutes,
	}
}

func (r *ratingRunService) reportStep() {
	r.mu.Lock()
	r.stepIndex++
	ev := events.StepCompleted{
		RunID:             r.sim.ID,
		StepIndex:         r.stepIndex,
		Time:              time.Now(),
		OutletTempC:       r.sim.GetOutletTemp(),
		EnvHeatRemovedKWh: r.sim.GetEnergyRemovedFromEnvironment(),
		StandbyLossKWh:    r.sim.GetStandbyLosses(),
		TankMeanTempC:     meanTemp(r.sim.Tank.Nodes),
		SourcesOn:         sourcesOn(r.sim),
	}
	r.lastEvent = ev
	r.mu.Unlock()

	r.bus.Publish(events.TopicStepCompleted, ev)
	metrics.Observe(ev, r.cfg.Service.StepMinutes)
}

func (r *ratingRunService) reportFailure(err error) {
	ev := events.RunFailed{
		RunID:     r.sim.ID,
		StepIndex: r.stepIndex,
		Time:      time.Now(),
		Reason:    err.Error(),
	}
	r.log.Error("run failed at step %d: %v", r.stepIndex, err)
	r.bus.Publish(events.TopicRunFailed, ev)
	metrics.ObserveFailure(ev)
}

func sourcesOn(s *sim.Simulation) []bool {
	on := make([]bool, len(s.Sources))
	for i := range s.Sources {
		on[i] = s.IsNthHeatSourceRunning(i)
	}
	return on
}

func meanTemp(nodes []float64) float64 {
	if len(nodes) == 0 {
		return 0
	}
	var sum float64
	for _, n := range nodes {
		sum += n
	}
	return sum / float64(len(nodes))
}

// ServeHTTP renders the last completed step as a status page, attachable
// to a RootServer alongside the logger/sysmon/live/metrics pages the same server hosts.
func (r *ratingRunService) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	ev := r.lastEvent
	idx := r.stepIndex
	r.mu.RUnlock()

	if req.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Rating Run</title></head><body>
<h1>Rating Run %s</h1>
<p>Step %d</p>
<table border="1" cellpadding="6">
<tr><th>Outlet C</th><td>%.2f</td></tr>
<tr><th>Tank mean C</th><td>%.2f</td></tr>
<tr><th>Standby loss kWh</th><td>%.4f</td></tr>
<tr><th>Sources on</th><td>%v</td></tr>
</table>
</body></html>`, ev.RunID, idx, ev.OutletTempC, ev.TankMeanTempC, ev.StandbyLossKWh, ev.SourcesOn)
}
