// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package hdf5

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// Datatype classes used by this package.
const (
	classFixed  = 0
	classFloat  = 1
	classString = 3
	classVlen   = 9
)

// Filter identifiers.
const (
	filterDeflate = 1
	filterShuffle = 2
)

type datatype struct {
	class     int
	size      int
	signed    bool // fixed-point only
	bigEndian bool
	vlenStr   bool // variable-length string
}

type filter struct {
	id     uint16
	values []uint32
}

type chunkedLayout struct {
	btreeAddr uint64
	dims      []uint64 // chunk dimensions, excluding the element dimension
}

// Dataset is an HDF5 dataset: an n-dimensional typed array.
type Dataset struct {
	f    *File
	name string

	dims  []uint64
	dtype datatype

	layoutClass int
	compact     []byte
	dataAddr    uint64 // contiguous
	dataSize    uint64
	chunked     chunkedLayout
	filters     []filter
}

func (f *File) openDataset(name string, addr uint64) (*Dataset, error) {
	oh, err := f.readObjectHeader(addr)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset %q: %w", name, err)
	}

	d := &Dataset{f: f, name: name}

	ds, ok := oh.find(msgDataspace)
	if !ok {
		return nil, fmt.Errorf("hdf5: dataset %q has no dataspace", name)
	}
	if d.dims, err = f.parseDataspace(ds); err != nil {
		return nil, fmt.Errorf("error parsing dataspace of %q: %w", name, err)
	}

	dt, ok := oh.find(msgDatatype)
	if !ok {
		return nil, fmt.Errorf("hdf5: dataset %q has no datatype", name)
	}
	if d.dtype, err = parseDatatype(dt); err != nil {
		return nil, fmt.Errorf("error parsing datatype of %q: %w", name, err)
	}

	lo, ok := oh.find(msgLayout)
	if !ok {
		return nil, fmt.Errorf("hdf5: dataset %q has no data layout", name)
	}
	if err := d.parseLayout(lo); err != nil {
		return nil, fmt.Errorf("error parsing layout of %q: %w", name, err)
	}

	if fp, ok := oh.find(msgFilterPipeline); ok {
		if d.filters, err = parseFilterPipeline(fp); err != nil {
			return nil, fmt.Errorf("error parsing filter pipeline of %q: %w", name, err)
		}
	}
	return d, nil
}

// Name returns the dataset's name within its parent group.
func (d *Dataset) Name() string { return d.name }

// Dims returns the dataset dimensions. A scalar dataset has no dimensions.
func (d *Dataset) Dims() []int {
	out := make([]int, len(d.dims))
	for i, v := range d.dims {
		out[i] = int(v)
	}
	return out
}

// numElements returns the element count, rejecting dimension values
// whose product would overflow the allocations below.
func (d *Dataset) numElements() (int, error) {
	const max = 1 << 31
	n := 1
	for _, v := range d.dims {
		if v >= max || uint64(n)*v >= max {
			return 0, fmt.Errorf("hdf5: dataset %q has an implausible shape %v", d.name, d.dims)
		}
		n *= int(v)
	}
	return n, nil
}

func (f *File) parseDataspace(b []byte) ([]uint64, error) {
	c := &buf{b: b, f: f}
	version := c.u8()
	rank := int(c.u8())
	flags := c.u8()
	switch version {
	case 1:
		c.skip(5) // reserved
	case 2:
		c.skip(1) // dataspace type
	default:
		return nil, fmt.Errorf("%w: dataspace version %d", ErrUnsupported, version)
	}
	if rank*f.sb.lenSize > c.remaining() {
		return nil, fmt.Errorf("hdf5: dataspace rank %d overruns a %d-byte message", rank, len(b))
	}
	dims := make([]uint64, rank)
	for i := range dims {
		dims[i] = c.length()
	}
	_ = flags // maximum dimensions, if present, are ignored
	return dims, c.err
}

func parseDatatype(b []byte) (datatype, error) {
	if len(b) < 8 {
		return datatype{}, fmt.Errorf("hdf5: short datatype message")
	}
	var dt datatype
	version := b[0] >> 4
	dt.class = int(b[0] & 0x0F)
	bits := b[1:4]
	dt.size = int(binary.LittleEndian.Uint32(b[4:8]))
	if version == 0 || version > 3 {
		return datatype{}, fmt.Errorf("%w: datatype version %d", ErrUnsupported, version)
	}

	switch dt.class {
	case classFixed:
		dt.bigEndian = bits[0]&0x1 != 0
		dt.signed = bits[0]&0x8 != 0
	case classFloat:
		dt.bigEndian = bits[0]&0x1 != 0
	case classString:
		// Padding and character set do not affect decoding.
	case classVlen:
		if bits[0]&0x0F != 1 {
			return datatype{}, fmt.Errorf("%w: non-string variable-length datatype", ErrUnsupported)
		}
		dt.vlenStr = true
	default:
		return datatype{}, fmt.Errorf("%w: datatype class %d", ErrUnsupported, dt.class)
	}
	if dt.bigEndian {
		return datatype{}, fmt.Errorf("%w: big-endian data", ErrUnsupported)
	}
	return dt, nil
}

func (d *Dataset) parseLayout(b []byte) error {
	c := &buf{b: b, f: d.f}
	version := c.u8()
	if version != 3 {
		return fmt.Errorf("%w: data layout version %d", ErrUnsupported, version)
	}
	d.layoutClass = int(c.u8())
	switch d.layoutClass {
	case 0: // compact
		size := int(c.u16())
		d.compact = c.bytes(size)
	case 1: // contiguous
		d.dataAddr = c.offset()
		d.dataSize = c.length()
	case 2: // chunked
		rank := int(c.u8()) // includes the element dimension
		if rank < 2 {
			return fmt.Errorf("hdf5: chunked layout with dimensionality %d", rank)
		}
		d.chunked.btreeAddr = c.offset()
		d.chunked.dims = make([]uint64, rank-1)
		for i := range d.chunked.dims {
			d.chunked.dims[i] = uint64(c.u32())
		}
		c.skip(4) // element size dimension
	default:
		return fmt.Errorf("%w: data layout class %d", ErrUnsupported, d.layoutClass)
	}
	return c.err
}

func parseFilterPipeline(b []byte) ([]filter, error) {
	c := &buf{b: b, f: nil}
	version := c.u8()
	nfilters := int(c.u8())
	switch version {
	case 1:
		c.skip(6) // reserved
	case 2:
	default:
		return nil, fmt.Errorf("%w: filter pipeline version %d", ErrUnsupported, version)
	}

	filters := make([]filter, 0, nfilters)
	for i := 0; i < nfilters; i++ {
		var fl filter
		fl.id = c.u16()
		nameLen := 0
		if version == 1 || fl.id >= 256 {
			nameLen = int(c.u16())
		}
		c.skip(2) // flags
		nvalues := int(c.u16())
		if version == 1 {
			// Name is padded to a multiple of eight bytes.
			nameLen = (nameLen + 7) &^ 7
		}
		c.skip(nameLen)
		fl.values = make([]uint32, nvalues)
		for j := range fl.values {
			fl.values[j] = c.u32()
		}
		if version == 1 && nvalues%2 != 0 {
			c.skip(4)
		}
		filters = append(filters, fl)
	}
	return filters, c.err
}

// read returns the dataset's raw bytes in row-major element order, with
// any filters removed. checkRaw validates the result against the element
// count before the typed readers index into it.
func (d *Dataset) read() ([]byte, error) {
	switch d.layoutClass {
	case 0:
		return d.compact, nil
	case 1:
		if d.f.undefined(d.dataAddr) {
			n, err := d.numElements()
			if err != nil {
				return nil, err
			}
			return make([]byte, n*d.dtype.size), nil
		}
		if d.dataSize > 1<<34 {
			return nil, fmt.Errorf("hdf5: dataset %q has an implausible data size %d", d.name, d.dataSize)
		}
		return d.f.readAt(int(d.dataSize), d.f.addr(d.dataAddr))
	case 2:
		return d.readChunked()
	}
	return nil, fmt.Errorf("%w: data layout class %d", ErrUnsupported, d.layoutClass)
}

// checkRaw reports an error when raw holds fewer than n elements of the
// given byte size.
func (d *Dataset) checkRaw(raw []byte, n, size int) error {
	if size <= 0 || uint64(len(raw)) < uint64(n)*uint64(size) {
		return fmt.Errorf("hdf5: dataset %q has %d data bytes for %d elements of %d", d.name, len(raw), n, size)
	}
	return nil
}

func (d *Dataset) readChunked() ([]byte, error) {
	n, err := d.numElements()
	if err != nil {
		return nil, err
	}
	elem := d.dtype.size
	if elem <= 0 || elem > 64 {
		return nil, fmt.Errorf("hdf5: dataset %q has an implausible element size %d", d.name, elem)
	}
	out := make([]byte, n*elem)
	if d.f.undefined(d.chunked.btreeAddr) {
		return out, nil // no chunks were ever written
	}

	chunkElems := 1
	for _, v := range d.chunked.dims {
		if v >= 1<<31 || uint64(chunkElems)*v >= 1<<31 {
			return nil, fmt.Errorf("hdf5: dataset %q has implausible chunk dimensions %v", d.name, d.chunked.dims)
		}
		chunkElems *= int(v)
	}

	err = d.f.walkChunkBtree(d.chunked.btreeAddr, len(d.dims), func(info chunkInfo) error {
		for dim, off := range info.offsets {
			if off >= d.dims[dim] {
				return fmt.Errorf("hdf5: chunk at %d starts outside the dataset", info.addr)
			}
		}
		raw, err := d.f.readAt(info.size, d.f.addr(info.addr))
		if err != nil {
			return fmt.Errorf("error reading chunk at %d: %w", info.addr, err)
		}
		data, err := d.unfilter(raw, info.filterMask)
		if err != nil {
			return err
		}
		if len(data) < chunkElems*elem {
			return fmt.Errorf("hdf5: chunk at %d is short: %d bytes", info.addr, len(data))
		}
		copyChunk(out, data, d.dims, d.chunked.dims, info.offsets, elem, 0, 0, 0)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// unfilter reverses the filter pipeline. Filters are applied in order on
// write, so they are undone in reverse.
func (d *Dataset) unfilter(data []byte, mask uint32) ([]byte, error) {
	for i := len(d.filters) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue // filter was skipped for this chunk
		}
		fl := d.filters[i]
		switch fl.id {
		case filterDeflate:
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("error opening deflate stream: %w", err)
			}
			inflated, err := io.ReadAll(zr)
			if err != nil {
				return nil, fmt.Errorf("error inflating chunk: %w", err)
			}
			if err := zr.Close(); err != nil {
				return nil, fmt.Errorf("error closing deflate stream: %w", err)
			}
			data = inflated
		case filterShuffle:
			data = unshuffle(data, d.dtype.size)
		default:
			return nil, fmt.Errorf("%w: filter %d", ErrUnsupported, fl.id)
		}
	}
	return data, nil
}

// unshuffle undoes the byte shuffle filter, which groups byte i of every
// element together to improve compression.
func unshuffle(data []byte, elem int) []byte {
	if elem <= 1 || len(data)%elem != 0 {
		return data
	}
	n := len(data) / elem
	out := make([]byte, len(data))
	for i := 0; i < elem; i++ {
		for j := 0; j < n; j++ {
			out[j*elem+i] = data[i*n+j]
		}
	}
	return out
}

// copyChunk copies one chunk into the output buffer, clipping edge chunks
// that extend past the dataset bounds. It recurses through the dimensions
// and performs a contiguous copy at the innermost one.
func copyChunk(out, chunk []byte, dims, cdims, off []uint64, elem, dim int, outPos, chunkPos int) {
	if dim == len(dims)-1 {
		n := int(cdims[dim])
		if rem := int(dims[dim]) - int(off[dim]); rem < n {
			n = rem
		}
		if n > 0 {
			copy(out[outPos+int(off[dim])*elem:], chunk[chunkPos:chunkPos+n*elem])
		}
		return
	}

	outStride := elem
	for d := dim + 1; d < len(dims); d++ {
		outStride *= int(dims[d])
	}
	chunkStride := elem
	for d := dim + 1; d < len(cdims); d++ {
		chunkStride *= int(cdims[d])
	}

	for i := 0; i < int(cdims[dim]); i++ {
		if off[dim]+uint64(i) >= dims[dim] {
			break
		}
		copyChunk(out, chunk, dims, cdims, off, elem, dim+1,
			outPos+(int(off[dim])+i)*outStride, chunkPos+i*chunkStride)
	}
}

// Float64s reads the dataset as float64 values in row-major order.
// Fixed-point and float32 data are widened.
func (d *Dataset) Float64s() ([]float64, error) {
	raw, err := d.read()
	if err != nil {
		return nil, err
	}
	n, err := d.numElements()
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	switch d.dtype.class {
	case classFloat:
		if err := d.checkRaw(raw, n, d.dtype.size); err != nil {
			return nil, err
		}
		switch d.dtype.size {
		case 8:
			for i := 0; i < n; i++ {
				out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
			}
		case 4:
			for i := 0; i < n; i++ {
				out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
			}
		default:
			return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, d.dtype.size)
		}
	case classFixed:
		ints, err := d.intsFromRaw(raw)
		if err != nil {
			return nil, err
		}
		for i, v := range ints {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("hdf5: dataset %q is not numeric", d.name)
	}
	return out, nil
}

// Ints reads a fixed-point dataset as int64 values in row-major order.
func (d *Dataset) Ints() ([]int64, error) {
	if d.dtype.class != classFixed {
		if d.dtype.class == classFloat {
			// SNIRF index fields are sometimes stored as floats.
			fs, err := d.Float64s()
			if err != nil {
				return nil, err
			}
			out := make([]int64, len(fs))
			for i, v := range fs {
				out[i] = int64(math.Round(v))
			}
			return out, nil
		}
		return nil, fmt.Errorf("hdf5: dataset %q is not an integer dataset", d.name)
	}
	raw, err := d.read()
	if err != nil {
		return nil, err
	}
	return d.intsFromRaw(raw)
}

func (d *Dataset) intsFromRaw(raw []byte) ([]int64, error) {
	n, err := d.numElements()
	if err != nil {
		return nil, err
	}
	if err := d.checkRaw(raw, n, d.dtype.size); err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		b := raw[i*d.dtype.size : (i+1)*d.dtype.size]
		var u uint64
		switch d.dtype.size {
		case 1:
			u = uint64(b[0])
		case 2:
			u = uint64(binary.LittleEndian.Uint16(b))
		case 4:
			u = uint64(binary.LittleEndian.Uint32(b))
		case 8:
			u = binary.LittleEndian.Uint64(b)
		default:
			return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, d.dtype.size)
		}
		if d.dtype.signed {
			shift := uint(64 - 8*d.dtype.size)
			out[i] = int64(u<<shift) >> shift
		} else {
			out[i] = int64(u)
		}
	}
	return out, nil
}

// Strings reads a fixed-length or variable-length string dataset.
func (d *Dataset) Strings() ([]string, error) {
	raw, err := d.read()
	if err != nil {
		return nil, err
	}
	n, err := d.numElements()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	switch {
	case d.dtype.class == classString:
		if err := d.checkRaw(raw, n, d.dtype.size); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			out[i] = strings.TrimRight(string(raw[i*d.dtype.size:(i+1)*d.dtype.size]), "\x00")
		}
	case d.dtype.vlenStr:
		// Each element is a length, a global heap collection address and
		// an object index within the collection.
		descSize := 4 + d.f.sb.offSize + 4
		if err := d.checkRaw(raw, n, descSize); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			c := &buf{b: raw[i*descSize : (i+1)*descSize], f: d.f}
			size := int(c.u32())
			addr := c.offset()
			idx := c.u32()
			if d.f.undefined(addr) || idx == 0 {
				continue // null string
			}
			obj, err := d.f.readGlobalHeapObject(addr, idx)
			if err != nil {
				return nil, err
			}
			if size < len(obj) {
				obj = obj[:size]
			}
			out[i] = strings.TrimRight(string(obj), "\x00")
		}
	default:
		return nil, fmt.Errorf("hdf5: dataset %q is not a string dataset", d.name)
	}
	return out, nil
}

// ScalarFloat64 reads a single-element numeric dataset.
func (d *Dataset) ScalarFloat64() (float64, error) {
	vs, err := d.Float64s()
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("hdf5: dataset %q has %d elements, expected 1", d.name, len(vs))
	}
	return vs[0], nil
}

// ScalarInt reads a single-element integer dataset.
func (d *Dataset) ScalarInt() (int64, error) {
	vs, err := d.Ints()
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("hdf5: dataset %q has %d elements, expected 1", d.name, len(vs))
	}
	return vs[0], nil
}

// ScalarString reads a single-element string dataset.
func (d *Dataset) ScalarString() (string, error) {
	vs, err := d.Strings()
	if err != nil {
		return "", err
	}
	if len(vs) != 1 {
		return "", fmt.Errorf("hdf5: dataset %q has %d elements, expected 1", d.name, len(vs))
	}
	return vs[0], nil
}
