// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package atomicfile writes output files all-or-nothing: content goes to a
// temp file in the target directory, is synced, and is renamed over the
// target. Writers to the same directory are serialized with an advisory
// lock.
package atomicfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"mirrorsim/pkg/errors"
)

// WriteFile creates or replaces path with the content written by fill. On
// any failure the temp file is removed and path is left untouched.
func WriteFile(path string, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	unlock, err := lockDir(dir)
	if err != nil {
		return errors.IOError(dir, err)
	}
	defer unlock()

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.IOError(path, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriterSize(tmpFile, 64*1024)
	if err = fill(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return errors.IOError(path, err)
	}
	if err = tmpFile.Sync(); err != nil {
		return errors.IOError(path, err)
	}
	if err = tmpFile.Chmod(0o644); err != nil {
		return errors.IOError(path, err)
	}
	if err = tmpFile.Close(); err != nil {
		return errors.IOError(path, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}
