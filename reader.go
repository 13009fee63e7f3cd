// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package snirf

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenPSG/snirf/internal/hdf5"
)

// File is a parsed SNIRF file.
type File struct {
	version    string
	recordings []*Recording
	closer     io.Closer
}

// Open parses a SNIRF file from the given reader. SNIRF files are HDF5
// containers; the reader must support random access.
func Open(r io.ReaderAt) (*File, error) {
	hf, err := hdf5.Open(r)
	if err != nil {
		return nil, fmt.Errorf("error opening container: %w", err)
	}
	root, err := hf.Root()
	if err != nil {
		return nil, fmt.Errorf("error opening root group: %w", err)
	}

	f := &File{}

	if root.Exists("formatVersion") {
		d, err := root.Dataset("formatVersion")
		if err != nil {
			return nil, fmt.Errorf("error opening formatVersion: %w", err)
		}
		if f.version, err = d.ScalarString(); err != nil {
			return nil, fmt.Errorf("error reading formatVersion: %w", err)
		}
	}

	names := indexedNames(root.Children(), "nirs")
	if len(names) == 0 {
		return nil, fmt.Errorf("snirf: no /nirs groups in file")
	}
	for _, name := range names {
		g, err := root.Group(name)
		if err != nil {
			return nil, fmt.Errorf("error opening /%s: %w", name, err)
		}
		rec, err := readRecording(g)
		if err != nil {
			return nil, fmt.Errorf("error reading /%s: %w", name, err)
		}
		f.recordings = append(f.recordings, rec)
	}
	return f, nil
}

// OpenFile opens and parses a SNIRF file from disk. Close releases the
// underlying file handle.
func OpenFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	f, err := Open(fh)
	if err != nil {
		_ = fh.Close()
		return nil, err
	}
	f.closer = fh
	return f, nil
}

// Close releases resources held by OpenFile. It is a no-op for files
// parsed from a caller-owned reader.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// FormatVersion returns the declared SNIRF format version, if present.
func (f *File) FormatVersion() string { return f.version }

// Recordings returns the /nirs elements of the file in index order.
func (f *File) Recordings() []*Recording { return f.recordings }

func readRecording(g *hdf5.Group) (*Recording, error) {
	rec := &Recording{MetaDataTags: make(map[string]string)}

	if g.Exists("metaDataTags") {
		tags, err := g.Group("metaDataTags")
		if err != nil {
			return nil, err
		}
		for _, name := range tags.Children() {
			d, err := tags.Dataset(name)
			if err != nil {
				return nil, err
			}
			v, err := readTagValue(d)
			if err != nil {
				return nil, fmt.Errorf("error reading metaDataTags/%s: %w", name, err)
			}
			rec.MetaDataTags[name] = v
		}
	}

	for _, name := range indexedNames(g.Children(), "data") {
		dg, err := g.Group(name)
		if err != nil {
			return nil, err
		}
		blk, err := readDataBlock(dg)
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}
		rec.Data = append(rec.Data, blk)
	}
	if len(rec.Data) == 0 {
		return nil, fmt.Errorf("snirf: recording has no data blocks")
	}

	if g.Exists("probe") {
		pg, err := g.Group("probe")
		if err != nil {
			return nil, err
		}
		if rec.Probe, err = readProbe(pg, rec.MetaDataTags); err != nil {
			return nil, fmt.Errorf("error reading probe: %w", err)
		}
	}

	for _, name := range indexedNames(g.Children(), "stim") {
		sg, err := g.Group(name)
		if err != nil {
			return nil, err
		}
		stim, err := readStim(sg)
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}
		rec.Stims = append(rec.Stims, stim)
	}

	return rec, nil
}

// readTagValue renders a metadata tag as a string. Tags are usually
// strings but numeric tags appear in the wild.
func readTagValue(d *hdf5.Dataset) (string, error) {
	if s, err := d.ScalarString(); err == nil {
		return s, nil
	}
	if v, err := d.ScalarFloat64(); err == nil {
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("snirf: unreadable metadata tag %q", d.Name())
}

func readDataBlock(g *hdf5.Group) (*DataBlock, error) {
	blk := &DataBlock{}

	td, err := g.Dataset("time")
	if err != nil {
		return nil, err
	}
	if blk.Time, err = td.Float64s(); err != nil {
		return nil, fmt.Errorf("error reading time: %w", err)
	}

	sd, err := g.Dataset("dataTimeSeries")
	if err != nil {
		return nil, err
	}
	dims := sd.Dims()
	if len(dims) != 2 {
		return nil, fmt.Errorf("snirf: dataTimeSeries has %d dimensions, expected 2", len(dims))
	}
	flat, err := sd.Float64s()
	if err != nil {
		return nil, fmt.Errorf("error reading dataTimeSeries: %w", err)
	}
	nt, nm := dims[0], dims[1]
	if nt != len(blk.Time) {
		return nil, fmt.Errorf("snirf: dataTimeSeries has %d rows but time has %d samples", nt, len(blk.Time))
	}
	blk.Series = make([][]float64, nt)
	for t := 0; t < nt; t++ {
		blk.Series[t] = flat[t*nm : (t+1)*nm]
	}

	for _, name := range indexedNames(g.Children(), "measurementList") {
		mg, err := g.Group(name)
		if err != nil {
			return nil, err
		}
		m, err := readMeasurement(mg)
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}
		blk.Measurements = append(blk.Measurements, m)
	}
	if len(blk.Measurements) != nm {
		return nil, fmt.Errorf("snirf: %d measurement list entries for %d data columns", len(blk.Measurements), nm)
	}

	return blk, nil
}

func readMeasurement(g *hdf5.Group) (Measurement, error) {
	var m Measurement
	fields := []struct {
		name     string
		dst      *int
		required bool
	}{
		{"sourceIndex", &m.SourceIndex, true},
		{"detectorIndex", &m.DetectorIndex, true},
		{"wavelengthIndex", &m.WavelengthIndex, true},
		{"dataType", &m.DataType, true},
		{"dataTypeIndex", &m.DataTypeIndex, false},
	}
	for _, f := range fields {
		if !g.Exists(f.name) {
			if f.required {
				return m, fmt.Errorf("snirf: missing %s", f.name)
			}
			continue
		}
		d, err := g.Dataset(f.name)
		if err != nil {
			return m, err
		}
		v, err := d.ScalarInt()
		if err != nil {
			return m, fmt.Errorf("error reading %s: %w", f.name, err)
		}
		*f.dst = int(v)
	}
	return m, nil
}

func readProbe(g *hdf5.Group, tags map[string]string) (Probe, error) {
	var p Probe

	wd, err := g.Dataset("wavelengths")
	if err != nil {
		return p, err
	}
	if p.Wavelengths, err = wd.Float64s(); err != nil {
		return p, fmt.Errorf("error reading wavelengths: %w", err)
	}

	if p.SourcePos, err = readPositions(g, "sourcePos3D", "sourcePos2D"); err != nil {
		return p, err
	}
	if p.DetectorPos, err = readPositions(g, "detectorPos3D", "detectorPos2D"); err != nil {
		return p, err
	}

	for _, s := range []struct {
		name string
		dst  *[]string
	}{
		{"sourceLabels", &p.SourceLabels},
		{"detectorLabels", &p.DetectorLabels},
	} {
		if !g.Exists(s.name) {
			continue
		}
		d, err := g.Dataset(s.name)
		if err != nil {
			return p, err
		}
		if *s.dst, err = d.Strings(); err != nil {
			return p, fmt.Errorf("error reading %s: %w", s.name, err)
		}
	}

	p.LengthUnit = tags["LengthUnit"]
	return p, nil
}

// readPositions reads an Nx3 position dataset, falling back to an Nx2
// dataset with a zero third coordinate.
func readPositions(g *hdf5.Group, name3d, name2d string) ([][3]float64, error) {
	name := name3d
	if !g.Exists(name) {
		name = name2d
		if !g.Exists(name) {
			return nil, nil
		}
	}
	d, err := g.Dataset(name)
	if err != nil {
		return nil, err
	}
	dims := d.Dims()
	if len(dims) != 2 || (dims[1] != 2 && dims[1] != 3) {
		return nil, fmt.Errorf("snirf: %s has unexpected shape %v", name, dims)
	}
	flat, err := d.Float64s()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", name, err)
	}
	out := make([][3]float64, dims[0])
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			out[i][j] = flat[i*dims[1]+j]
		}
	}
	return out, nil
}

func readStim(g *hdf5.Group) (Stim, error) {
	var s Stim

	nd, err := g.Dataset("name")
	if err != nil {
		return s, err
	}
	if s.Name, err = nd.ScalarString(); err != nil {
		return s, fmt.Errorf("error reading name: %w", err)
	}

	if !g.Exists("data") {
		return s, nil
	}
	dd, err := g.Dataset("data")
	if err != nil {
		return s, err
	}
	dims := dd.Dims()
	flat, err := dd.Float64s()
	if err != nil {
		return s, fmt.Errorf("error reading data: %w", err)
	}
	// Stim data is Nx3 (onset, duration, value); extra columns are
	// tool-specific and ignored.
	if len(dims) != 2 || dims[1] < 3 {
		return s, fmt.Errorf("snirf: stim data has unexpected shape %v", dims)
	}
	for i := 0; i < dims[0]; i++ {
		row := flat[i*dims[1]:]
		s.Events = append(s.Events, StimEvent{Onset: row[0], Duration: row[1], Value: row[2]})
	}
	return s, nil
}

// indexedNames selects the children matching an indexed SNIRF name like
// data1, data2, ... and returns them in numeric order. A bare name with
// no index sorts first.
func indexedNames(children []string, prefix string) []string {
	type entry struct {
		name string
		idx  int
	}
	var entries []entry
	for _, name := range children {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		suffix := name[len(prefix):]
		if suffix == "" {
			entries = append(entries, entry{name: name, idx: 0})
			continue
		}
		idx, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: name, idx: idx})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}
