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

// Package metrics exposes a rating run's progress as Prometheus gauges and
// counters, scraped from /metrics on the root HTTP server.
package metrics

import (
	"net/http"
	"strconv"

	"thermtank/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thermtank_steps_total",
		Help: "Total simulation steps completed across all runs.",
	})
	runsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thermtank_runs_failed_total",
		Help: "Total runs that tripped the sticky failure flag.",
	})
	tankMeanTempC = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "thermtank_tank_mean_temp_celsius",
		Help: "Volume-weighted mean tank temperature after the last completed step.",
	})
	outletTempC = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "thermtank_outlet_temp_celsius",
		Help: "Outlet (draw) temperature after the last completed step.",
	})
	standbyLossKWh = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "thermtank_standby_loss_kwh",
		Help: "Standby (tank-to-ambient) heat loss over the last completed step.",
	})
	sourceOnSeconds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "thermtank_source_on_seconds_total",
		Help: "Cumulative runtime of each heat source, by index.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(stepsTotal, runsFailedTotal, tankMeanTempC, outletTempC, standbyLossKWh, sourceOnSeconds)
}

// Handler returns the HTTP handler to attach at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe records one completed step's outcome. StepMinutes converts the
// bool per-source "on" flags into accumulated on-time for the counter.
func Observe(ev events.StepCompleted, stepMinutes float64) {
	stepsTotal.Inc()
	tankMeanTempC.Set(ev.TankMeanTempC)
	outletTempC.Set(ev.OutletTempC)
	standbyLossKWh.Set(ev.StandbyLossKWh)

	for i, on := range ev.SourcesOn {
		if !on {
			continue
		}
		sourceOnSeconds.WithLabelValues(strconv.Itoa(i)).Add(stepMinutes * 60)
	}
}

// ObserveFailure records a run tripping its sticky failure flag.
func ObserveFailure(events.RunFailed) {
	runsFailedTotal.Inc()
}
