// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package table loads whitespace-delimited numeric reference tables (FEA
// influence tables, bending-mode grids, actuator forces, look-up tables)
// into gonum matrices.
package table

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"mirrorsim/pkg/errors"
)

// maxLineBytes bounds a single table row. LUT rows carry one column per
// ruler step and force tables one per actuator.
const maxLineBytes = 16 << 20

// Table is an immutable rows x cols numeric table.
type Table struct {
	name string
	m    *mat.Dense
}

// New builds a table from rows. All rows must have the same length.
func New(name string, rows [][]float64) (*Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.DataShapeErrorf("empty table").SetPath(name)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, errors.DataShapeError("columns in row "+strconv.Itoa(i), len(r), cols).SetPath(name)
		}
		data = append(data, r...)
	}
	return &Table{name: name, m: mat.NewDense(len(rows), cols, data)}, nil
}

// Load reads the table at path, skipping the first skipRows lines. Blank
// lines and lines starting with '#' are ignored.
func Load(path string, skipRows int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()

	return Parse(f, path, skipRows)
}

// Parse reads a table from r. name is used in error messages.
func Parse(r io.Reader, name string, skipRows int) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var data []float64
	rows, cols := 0, 0
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= skipRows {
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, errors.DataShapeError("columns at line "+strconv.Itoa(lineNum), len(fields), cols).
				SetPath(name).SetContext("line", lineNum)
		}
		for _, fld := range fields {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				return nil, errors.DataShapeErrorf("line %d: invalid number %q", lineNum, fld).
					SetPath(name).SetContext("line", lineNum)
			}
			data = append(data, v)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError(name, err)
	}
	if rows == 0 {
		return nil, errors.DataShapeErrorf("no data rows").SetPath(name)
	}
	return &Table{name: name, m: mat.NewDense(rows, cols, data)}, nil
}

// Name returns the source the table was loaded from.
func (t *Table) Name() string { return t.name }

// Rows returns the number of rows.
func (t *Table) Rows() int {
	r, _ := t.m.Dims()
	return r
}

// Cols returns the number of columns.
func (t *Table) Cols() int {
	_, c := t.m.Dims()
	return c
}

// At returns element (i, j).
func (t *Table) At(i, j int) float64 { return t.m.At(i, j) }

// Col returns a copy of column j.
func (t *Table) Col(j int) []float64 { return mat.Col(nil, j, t.m) }

// Row returns a copy of row i.
func (t *Table) Row(i int) []float64 { return mat.Row(nil, i, t.m) }

// Dense returns a read-only view of the underlying matrix.
func (t *Table) Dense() mat.Matrix { return t.m }

// RequireShape checks that the table has exactly rows rows (rows < 0 skips
// the check) and at least minCols columns.
func (t *Table) RequireShape(rows, minCols int) error {
	if rows >= 0 && t.Rows() != rows {
		return errors.DataShapeError("rows", t.Rows(), rows).SetPath(t.name)
	}
	if t.Cols() < minCols {
		return errors.DataShapeError("columns", t.Cols(), minCols).SetPath(t.name)
	}
	return nil
}

// Dir resolves table names against a data directory. It is a plain value;
// each request carries its own.
type Dir string

// Path returns the full path of name.
func (d Dir) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(string(d), name)
}

// Load loads name from the directory.
func (d Dir) Load(name string, skipRows int) (*Table, error) {
	return Load(d.Path(name), skipRows)
}
