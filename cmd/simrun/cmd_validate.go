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

	"github.com/spf13/cobra"

	"thermtank/internal/config"
)

var validateConfigPath string

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Parse a rating run config and build the simulation without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(validateConfigPath)
		if err != nil {
			return err
		}
		simulation, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("config is invalid: %w", err)
		}
		fmt.Printf("config OK: %d heat source(s), %d tank nodes\n", len(simulation.Sources), len(simulation.Tank.Nodes))
		return nil
	},
}

func init() {
	validateConfigCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "var/config/simrun.yaml", "rating run config file")
}
