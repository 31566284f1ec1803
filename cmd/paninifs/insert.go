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

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/decompose"
)

// formatFlag is a pflag.Value enforcing the closed set of container format
// hints accepted by --format, rather than validating a bare string after
// parsing.
type formatFlag struct {
	hint decompose.Format
	name string
}

func newFormatFlag() *formatFlag {
	return &formatFlag{hint: decompose.Auto, name: "auto"}
}

func (f *formatFlag) String() string { return f.name }
func (f *formatFlag) Type() string   { return "format" }

func (f *formatFlag) Set(s string) error {
	switch s {
	case "auto":
		f.hint = decompose.Auto
	case "png":
		f.hint = decompose.PNG
	case "jpeg":
		f.hint = decompose.JPEG
	case "mp4":
		f.hint = decompose.MP4
	case "raw":
		f.hint = decompose.RawFormat
	default:
		return fmt.Errorf("invalid format %q: must be one of auto, png, jpeg, mp4, raw", s)
	}
	f.name = s
	return nil
}

func newInsertCmd() *cobra.Command {
	format := newFormatFlag()
	cmd := &cobra.Command{
		Use:   "insert <file>",
		Short: "Decompose a file into atoms and insert each into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			atoms := a.decomposer.Decompose(data, format.hint)
			ctx := context.Background()
			var digests []string
			for _, at := range atoms {
				inserted, err := a.store.Insert(ctx, payloadOf(data, at), at.Kind)
				if err != nil {
					return err
				}
				digests = append(digests, inserted.Digest)
			}

			for _, d := range digests {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
	cmd.Flags().VarP(pflag.Value(format), "format", "f", "container format hint: auto, png, jpeg, mp4, raw")
	return cmd
}

// payloadOf slices the original bytes back out using the atom's recorded
// offset and size, since Decompose returns atoms carrying their source
// position rather than a separately-threaded payload slice.
func payloadOf(data []byte, a *atom.Atom) []byte {
	start := int(a.SourceOffset)
	end := start + int(a.Size)
	if end > len(data) {
		end = len(data)
	}
	return data[start:end]
}
