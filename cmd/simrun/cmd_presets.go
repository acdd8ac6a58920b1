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

	"thermtank/internal/preset"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Inspect the built-in tank/heat-source presets",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in preset ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range []preset.ID{preset.RestankRealistic, preset.BasicIntegrated, preset.ExternalTest} {
			s, err := preset.Init(id)
			if err != nil {
				return err
			}
			fmt.Printf("%-18s %d source(s), %d tank nodes\n", id, len(s.Sources), len(s.Tank.Nodes))
		}
		return nil
	},
}

func init() {
	presetsCmd.AddCommand(presetsListCmd)
}
