// Residue map text format reader and writer
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gridmap

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"mirrorsim/pkg/atomicfile"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/pool"
)

// valuePrecision is the number of mantissa digits after the point in every
// written float ("%.9E").
const valuePrecision = 9

// WriteTo writes the residue map text format:
//
//	NUMX NUMY PITCHX PITCHY
//	VALUE DX DY DXDY        (NUMX*NUMY lines, row-major)
func (m *Map) WriteTo(w io.Writer) (int64, error) {
	if len(m.Nodes) != m.NumX*m.NumY {
		return 0, errors.DataShapeError("residue map nodes", len(m.Nodes), m.NumX*m.NumY)
	}
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	var total int64
	flush := func() error {
		n, err := w.Write(buf.Bytes())
		total += int64(n)
		buf.Reset()
		return err
	}

	buf.AppendInt(m.NumX)
	buf.WriteByte(' ')
	buf.AppendInt(m.NumY)
	buf.WriteByte(' ')
	buf.AppendFloat(m.PitchX, 'E', valuePrecision)
	buf.WriteByte(' ')
	buf.AppendFloat(m.PitchY, 'E', valuePrecision)
	buf.WriteByte('\n')
	if err := flush(); err != nil {
		return total, err
	}

	for _, n := range m.Nodes {
		buf.AppendFloat(n.Value, 'E', valuePrecision)
		buf.WriteByte(' ')
		buf.AppendFloat(n.DX, 'E', valuePrecision)
		buf.WriteByte(' ')
		buf.AppendFloat(n.DY, 'E', valuePrecision)
		buf.WriteByte(' ')
		buf.AppendFloat(n.DXDY, 'E', valuePrecision)
		buf.WriteByte('\n')
		if err := flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFile writes m to path. Readers see either the previous file or the
// complete new one, never a partial map.
func WriteFile(path string, m *Map) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		if _, err := m.WriteTo(w); err != nil {
			if errors.CodeOf(err) != "" {
				return err
			}
			return errors.IOError(path, err)
		}
		return nil
	})
}

// MaxAxisNodes bounds each header count accepted by Read: the largest
// interior count plus padding.
const MaxAxisNodes = 4096 + Padding

func validCount(v float64) bool {
	return v >= 1 && v <= MaxAxisNodes && v == math.Trunc(v)
}

// Read parses a residue map. The header counts may be written as integers
// or as floats with no fractional part.
func Read(r io.Reader) (*Map, error) {
	scanner := bufio.NewScanner(r)
	fields := pool.GetStringSlice()
	defer pool.PutStringSlice(fields)
	rec := pool.GetFloat64Slice(pool.NodeSize)
	defer pool.PutFloat64Slice(rec)

	var m *Map
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		*fields = append((*fields)[:0], strings.Fields(line)...)
		if len(*fields) != 4 {
			return nil, errors.DataShapeError("fields at line "+strconv.Itoa(lineNum), len(*fields), 4)
		}
		for i, f := range *fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.DataShapeErrorf("line %d: invalid number %q", lineNum, f)
			}
			rec[i] = v
		}

		if m == nil {
			if !validCount(rec[0]) || !validCount(rec[1]) {
				return nil, errors.DataShapeErrorf("invalid grid size %q in header", line)
			}
			nx, ny := int(rec[0]), int(rec[1])
			m = &Map{NumX: nx, NumY: ny, PitchX: rec[2], PitchY: rec[3]}
			m.Nodes = make([]Node, 0, nx*ny)
			continue
		}
		if len(m.Nodes) == m.NumX*m.NumY {
			return nil, errors.DataShapeErrorf("line %d: more nodes than %dx%d header", lineNum, m.NumX, m.NumY)
		}
		m.Nodes = append(m.Nodes, Node{Value: rec[0], DX: rec[1], DY: rec[2], DXDY: rec[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrIO, "read residue map")
	}
	if m == nil {
		return nil, errors.DataShapeErrorf("empty residue map")
	}
	if len(m.Nodes) != m.NumX*m.NumY {
		return nil, errors.DataShapeError("residue map nodes", len(m.Nodes), m.NumX*m.NumY)
	}
	return m, nil
}

// ReadFile reads a residue map from path.
func ReadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()
	m, err := Read(f)
	if err != nil {
		if me, ok := err.(*errors.MirrorError); ok {
			me.SetPath(path)
		}
		return nil, err
	}
	return m, nil
}
