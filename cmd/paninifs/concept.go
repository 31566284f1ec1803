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
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stephanedenis/panini-fs/internal/decompose"
	"github.com/stephanedenis/panini-fs/internal/temporal"
)

func newConceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concept",
		Short: "Create and inspect versioned concepts",
	}
	cmd.AddCommand(
		newConceptCreateCmd(),
		newConceptPushCmd(),
		newConceptHistoryCmd(),
		newConceptDiffCmd(),
		newConceptRevertCmd(),
	)
	return cmd
}

func newConceptCreateCmd() *cobra.Command {
	var author, message string
	cmd := &cobra.Command{
		Use:   "create <name> <file>",
		Short: "Decompose, insert and bind a file as a new concept's initial version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			digests, size, err := insertFile(a, args[1], decompose.Auto)
			if err != nil {
				return err
			}
			c := newConceptFromAtoms(args[0], digests, size, author, message)
			a.index.PutConcept(c)
			if err := a.saveIndex(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "cli", "author attributed to the initial version")
	cmd.Flags().StringVar(&message, "message", "initial version", "commit message for the initial version")
	return cmd
}

func newConceptPushCmd() *cobra.Command {
	var author, message string
	cmd := &cobra.Command{
		Use:   "push <concept-id> <file>",
		Short: "Decompose, insert and bind a file as a concept's next version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			digests, size, err := insertFile(a, args[1], decompose.Auto)
			if err != nil {
				return err
			}
			versionID, err := a.index.PushVersion(args[0], digests, size, author, message)
			if err != nil {
				return err
			}
			if err := a.saveIndex(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), versionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "cli", "author attributed to the new version")
	cmd.Flags().StringVar(&message, "message", "", "commit message for the new version")
	return cmd
}

func newConceptHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <concept-id>",
		Short: "List every version of a concept in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.index.History(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range versions {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", v.VersionID, v.Timestamp.Format(time.RFC3339), v.Author, v.Message)
			}
			return nil
		},
	}
}

func newConceptDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <concept-id> <from-version> <to-version>",
		Short: "Show the atom-level difference between two versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.index.Diff(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "added:   %s\n", strings.Join(d.Added, ", "))
			fmt.Fprintf(out, "removed: %s\n", strings.Join(d.Removed, ", "))
			fmt.Fprintf(out, "size delta: %+d bytes\n", d.SizeDelta)
			return nil
		},
	}
}

func newConceptRevertCmd() *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "revert <concept-id> <target-version>",
		Short: "Push a new version whose atoms match an earlier version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			versionID, err := a.index.Revert(args[0], args[1], author)
			if err != nil {
				return err
			}
			if err := a.saveIndex(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), versionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "cli", "author attributed to the revert version")
	return cmd
}

func newConceptFromAtoms(name string, atoms []string, size uint64, author, message string) *temporal.Concept {
	return temporal.NewConcept(name, atoms, size, author, message, time.Now().UTC())
}

func insertFile(a *app, path string, hint decompose.Format) (digests []string, size uint64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	atoms := a.decomposer.Decompose(data, hint)
	ctx := context.Background()
	for _, at := range atoms {
		inserted, err := a.store.Insert(ctx, payloadOf(data, at), at.Kind)
		if err != nil {
			return nil, 0, err
		}
		digests = append(digests, inserted.Digest)
		size += inserted.Size
	}
	return digests, size, nil
}
