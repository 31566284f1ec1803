// Copyright 2024 The Panini-FS Authors
// This file is part of Panini-FS.
//
// Panini-FS is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Panini-FS is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Panini-FS. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total atoms:    %d\n", s.TotalAtoms)
			fmt.Fprintf(out, "total bytes:    %s\n", humanize.Bytes(s.TotalBytes))
			fmt.Fprintf(out, "dedup atoms:    %d\n", s.DedupAtoms)
			fmt.Fprintf(out, "dedup savings:  %s\n", humanize.Bytes(s.DedupSavings))
			return nil
		},
	}
}
