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

// Command paninifs is the CLI front door over the storage substrate's
// façades: inserting and fetching atoms, garbage collection, concept
// history and time travel, and mounting the read-only POSIX projection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool
	flagDB      string
)

func main() {
	root := &cobra.Command{
		Use:           "paninifs",
		Short:         "Content-addressed, temporally-versioned object store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "panini-fs.toml", "path to the TOML configuration file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagDB, "db", "panini-fs.db", "path to the sqlite durability file for the temporal index (read by every command, written by concept/snapshot commands)")

	root.AddCommand(
		newInsertCmd(),
		newFetchCmd(),
		newGCCmd(),
		newStatsCmd(),
		newConceptCmd(),
		newSnapshotCmd(),
		newMountCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paninifs:", err)
		os.Exit(1)
	}
}
