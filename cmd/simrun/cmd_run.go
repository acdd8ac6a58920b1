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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"thermtank/internal/config"
	"thermtank/internal/livestatus"
	"thermtank/internal/metrics"
	"thermtank/internal/telemetry"
	"thermtank/pkg/appctx"
	"thermtank/pkg/eventbus"
	"thermtank/pkg/logger"
	"thermtank/pkg/modbus"
	"thermtank/pkg/rootserv"
	"thermtank/pkg/service"
	"thermtank/pkg/sysmon"
)

var (
	runConfigPath  string
	runModbusPath  string
	runLive        bool
	runTelemetryHz time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a rating simulation as a long-lived service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath)
		if err != nil {
			return err
		}

		if err := logger.Init(cfg.Service.LogPath); err != nil {
			return fmt.Errorf("logger init: %w", err)
		}

		simulation, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("building simulation: %w", err)
		}

		bus := eventbus.New()

		var feed *telemetry.Feed
		ctx, ctxCancel := appctx.New()
		if runLive {
			if runModbusPath == "" {
				return fmt.Errorf("run: --live requires --modbus-config")
			}
			modbusCfg := modbus.LoadConfig(runModbusPath)
			feed = telemetry.NewFeed(ctx, modbusCfg, runTelemetryHz)
		}

		runner := newRatingRunService(simulation, cfg, bus, feed)
		server := rootserv.New(cfg.Service.HTTPAddr)
		sysMonitor := sysmon.New()
		dashboard := livestatus.New(bus)

		server.Attach("/logger", "Logger", logger.WebService())
		server.Attach("/monitor", "System Monitor", sysMonitor)
		server.Attach("/status", "Rating Run Status", runner)
		server.Attach("/live", "Live Status Websocket", dashboard)
		server.Attach("/metrics", "Prometheus Metrics", metrics.Handler())

		runnables := []service.Runnable{runner, server, dashboard}
		if feed != nil {
			runnables = append(runnables, feed)
		}

		exitCh := service.Start(ctx, ctxCancel, runnables)
		code := <-exitCh
		if code != 0 {
			return fmt.Errorf("run: one or more services exited with an error")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "var/config/simrun.yaml", "rating run config file")
	runCmd.Flags().BoolVar(&runLive, "live", false, "poll a physical rig over Modbus-TCP instead of a synthetic draw profile")
	runCmd.Flags().StringVar(&runModbusPath, "modbus-config", "", "Modbus register config (required with --live)")
	runCmd.Flags().DurationVar(&runTelemetryHz, "telemetry-interval", 5*time.Second, "live telemetry poll interval")
}
