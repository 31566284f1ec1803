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

package paninierr

import (
	"errors"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// ToErrno translates a core error kind into the POSIX errno the mount
// projection surfaces to the kernel. HashMismatch is logged by the caller
// before this is invoked, since the errno alone can't carry the digests.
func ToErrno(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	var notFound *NotFound
	if errors.As(err, &notFound) {
		return fuse.ENOENT
	}
	var hashMismatch *HashMismatch
	if errors.As(err, &hashMismatch) {
		return fuse.EIO
	}
	var ioErr *IoError
	if errors.As(err, &ioErr) {
		return fuse.EIO
	}
	var invalidArg *InvalidArgument
	if errors.As(err, &invalidArg) {
		return fuse.EINVAL
	}
	return fuse.EIO
}
