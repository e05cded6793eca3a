// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !unix

package atomicfile

// lockDir is a no-op where flock is unavailable; the rename still keeps
// readers from seeing a partial file.
func lockDir(string) (func(), error) {
	return func() {}, nil
}
