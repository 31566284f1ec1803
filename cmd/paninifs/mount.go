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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stephanedenis/panini-fs/internal/mount"
	"github.com/stephanedenis/panini-fs/internal/reconcile"
)

func newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount the read-only POSIX projection at mountpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagConfig, flagVerbose)
			if err != nil {
				return err
			}
			defer a.Close()

			fsys := mount.New(a.index, a.store, a.reconstructor, a.log)
			server, err := fsys.Mount(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if a.cfg.ReconcileInterval > 0 {
				r := reconcile.New(a.store, a.store.Backend(), a.store.Backend().Size, a.log)
				go func() {
					if err := r.Run(ctx, a.cfg.ReconcileInterval, a.cfg.StorageRoot); err != nil && err != context.Canceled {
						a.log.Warn("reconcile loop stopped", zap.Error(err))
					}
				}()
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sig
				server.Unmount()
				cancel()
			}()

			server.Wait()
			return nil
		},
	}
}
