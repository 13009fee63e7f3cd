// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package hdf5test builds small HDF5 file images in memory for tests.
// It emits the classic on-disk flavor: a version 0 superblock, version 1
// object headers and symbol-table groups, which is what the reference
// SNIRF tooling writes by default.
package hdf5test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"sort"
	"strings"
)

const undef = 0xFFFFFFFFFFFFFFFF

// Builder assembles an HDF5 file image. Paths are slash-separated;
// intermediate groups are created on demand.
type Builder struct {
	root *node
}

type node struct {
	name     string
	children map[string]*node
	order    []string
	ds       *dataset
}

type dataset struct {
	dims      []int
	dtype     string // "f64", "i32", "str", "vstr"
	strSize   int
	f64s      []float64
	i32s      []int32
	strs      []string
	chunkDims []int // chunked layout when non-nil
	shuffle   bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{root: newNode("/")}
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

func (b *Builder) at(path string) *node {
	n := b.root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		child, ok := n.children[part]
		if !ok {
			child = newNode(part)
			n.children[part] = child
			n.order = append(n.order, part)
		}
		n = child
	}
	return n
}

// Group creates an empty group at path.
func (b *Builder) Group(path string) {
	b.at(path)
}

// Float64s adds a contiguous float64 dataset.
func (b *Builder) Float64s(path string, dims []int, values []float64) {
	b.at(path).ds = &dataset{dims: dims, dtype: "f64", f64s: values}
}

// ChunkedFloat64s adds a chunked float64 dataset, deflate-compressed and
// optionally byte-shuffled.
func (b *Builder) ChunkedFloat64s(path string, dims, chunkDims []int, values []float64, shuffle bool) {
	b.at(path).ds = &dataset{dims: dims, dtype: "f64", f64s: values, chunkDims: chunkDims, shuffle: shuffle}
}

// Ints adds a contiguous int32 dataset.
func (b *Builder) Ints(path string, dims []int, values []int32) {
	b.at(path).ds = &dataset{dims: dims, dtype: "i32", i32s: values}
}

// Strings adds a fixed-length string dataset. The element size is the
// longest value plus a NUL terminator.
func (b *Builder) Strings(path string, values []string) {
	size := 1
	for _, s := range values {
		if len(s)+1 > size {
			size = len(s) + 1
		}
	}
	b.at(path).ds = &dataset{dims: []int{len(values)}, dtype: "str", strSize: size, strs: values}
}

// ScalarString adds a scalar fixed-length string dataset.
func (b *Builder) ScalarString(path, value string) {
	b.at(path).ds = &dataset{dims: nil, dtype: "str", strSize: len(value) + 1, strs: []string{value}}
}

// VarStrings adds a variable-length string dataset backed by a global
// heap collection.
func (b *Builder) VarStrings(path string, values []string) {
	b.at(path).ds = &dataset{dims: []int{len(values)}, dtype: "vstr", strs: values}
}

// Bytes assembles and returns the file image.
func (b *Builder) Bytes() []byte {
	w := &writer{}
	w.reserve(96) // superblock, patched at the end

	rootOH, rootBtree, rootHeap := w.writeGroup(b.root)
	w.patchSuperblock(rootOH, rootBtree, rootHeap)
	return w.buf
}

type writer struct {
	buf []byte
}

func (w *writer) reserve(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}

// append adds data at the next 8-aligned offset and returns its address.
func (w *writer) append(data []byte) uint64 {
	for len(w.buf)%8 != 0 {
		w.buf = append(w.buf, 0)
	}
	addr := uint64(len(w.buf))
	w.buf = append(w.buf, data...)
	return addr
}

func u16(v int) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

func u32(v int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func (w *writer) patchSuperblock(rootOH, rootBtree, rootHeap uint64) {
	sb := make([]byte, 0, 96)
	sb = append(sb, 0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n')
	sb = append(sb, 0)          // superblock version
	sb = append(sb, 0)          // free space version
	sb = append(sb, 0)          // root symbol table version
	sb = append(sb, 0)          // reserved
	sb = append(sb, 0)          // shared header message version
	sb = append(sb, 8)          // size of offsets
	sb = append(sb, 8)          // size of lengths
	sb = append(sb, 0)          // reserved
	sb = append(sb, u16(4)...)  // group leaf node k
	sb = append(sb, u16(16)...) // group internal node k
	sb = append(sb, u32(0)...)  // file consistency flags
	sb = append(sb, u64(0)...)  // base address
	sb = append(sb, u64(undef)...)
	sb = append(sb, u64(uint64(len(w.buf)))...) // end of file address
	sb = append(sb, u64(undef)...)
	// Root group symbol table entry.
	sb = append(sb, u64(0)...) // link name offset
	sb = append(sb, u64(rootOH)...)
	sb = append(sb, u32(1)...) // cache type: cached symbol table
	sb = append(sb, u32(0)...)
	sb = append(sb, u64(rootBtree)...)
	sb = append(sb, u64(rootHeap)...)
	copy(w.buf[:96], sb)
}

type msg struct {
	typ  int
	body []byte
}

// writeObjectHeader emits a version 1 object header.
func (w *writer) writeObjectHeader(msgs []msg) uint64 {
	var body []byte
	for _, m := range msgs {
		padded := len(m.body)
		padded = (padded + 7) &^ 7
		body = append(body, u16(m.typ)...)
		body = append(body, u16(padded)...)
		body = append(body, 0, 0, 0, 0) // flags, reserved
		body = append(body, m.body...)
		body = append(body, make([]byte, padded-len(m.body))...)
	}

	hdr := make([]byte, 0, 16+len(body))
	hdr = append(hdr, 1, 0) // version, reserved
	hdr = append(hdr, u16(len(msgs))...)
	hdr = append(hdr, u32(1)...) // reference count
	hdr = append(hdr, u32(len(body))...)
	hdr = append(hdr, 0, 0, 0, 0) // padding to align messages
	hdr = append(hdr, body...)
	return w.append(hdr)
}

// writeGroup emits a group's local heap, symbol table node, B-tree node
// and object header, children first.
func (w *writer) writeGroup(n *node) (oh, btree, heap uint64) {
	names := append([]string(nil), n.order...)
	sort.Strings(names)

	addrs := make(map[string]uint64, len(names))
	for _, name := range names {
		child := n.children[name]
		if child.ds != nil {
			addrs[name] = w.writeDataset(child.ds)
		} else {
			addrs[name], _, _ = w.writeGroup(child)
		}
	}

	// Local heap data segment: offset 0 is reserved so that a zero name
	// offset reads as the empty string.
	heapData := make([]byte, 8)
	nameOff := make(map[string]uint64, len(names))
	for _, name := range names {
		nameOff[name] = uint64(len(heapData))
		heapData = append(heapData, name...)
		heapData = append(heapData, 0)
		for len(heapData)%8 != 0 {
			heapData = append(heapData, 0)
		}
	}
	heapDataAddr := w.append(heapData)

	heapHdr := make([]byte, 0, 32)
	heapHdr = append(heapHdr, 'H', 'E', 'A', 'P', 0, 0, 0, 0)
	heapHdr = append(heapHdr, u64(uint64(len(heapData)))...)
	heapHdr = append(heapHdr, u64(undef)...) // free list head
	heapHdr = append(heapHdr, u64(heapDataAddr)...)
	heap = w.append(heapHdr)

	snod := make([]byte, 0, 8+40*len(names))
	snod = append(snod, 'S', 'N', 'O', 'D', 1, 0)
	snod = append(snod, u16(len(names))...)
	for _, name := range names {
		snod = append(snod, u64(nameOff[name])...)
		snod = append(snod, u64(addrs[name])...)
		snod = append(snod, u32(0)...) // cache type
		snod = append(snod, u32(0)...)
		snod = append(snod, make([]byte, 16)...) // scratch
	}
	snodAddr := w.append(snod)

	bt := make([]byte, 0, 48)
	bt = append(bt, 'T', 'R', 'E', 'E', 0, 0) // group node, level 0
	bt = append(bt, u16(1)...)                // entries used
	bt = append(bt, u64(undef)...)            // left sibling
	bt = append(bt, u64(undef)...)            // right sibling
	bt = append(bt, u64(0)...)                // key 0
	bt = append(bt, u64(snodAddr)...)
	lastKey := uint64(0)
	if len(names) > 0 {
		lastKey = nameOff[names[len(names)-1]]
	}
	bt = append(bt, u64(lastKey)...)
	btree = w.append(bt)

	st := append(u64(btree), u64(heap)...)
	oh = w.writeObjectHeader([]msg{{typ: 0x0011, body: st}})
	return oh, btree, heap
}

func dataspaceMsg(dims []int) []byte {
	b := []byte{1, byte(len(dims)), 0, 0, 0, 0, 0, 0}
	for _, d := range dims {
		b = append(b, u64(uint64(d))...)
	}
	return b
}

func float64TypeMsg() []byte {
	b := []byte{0x11, 0x20, 0x3F, 0x00}
	b = append(b, u32(8)...)  // size
	b = append(b, u16(0)...)  // bit offset
	b = append(b, u16(64)...) // bit precision
	b = append(b, 52, 11, 0, 52)
	b = append(b, u32(1023)...) // exponent bias
	return b
}

func int32TypeMsg() []byte {
	b := []byte{0x10, 0x08, 0x00, 0x00}
	b = append(b, u32(4)...)
	b = append(b, u16(0)...)
	b = append(b, u16(32)...)
	return b
}

func stringTypeMsg(size int) []byte {
	b := []byte{0x13, 0x00, 0x00, 0x00}
	return append(b, u32(size)...)
}

func varStringTypeMsg() []byte {
	b := []byte{0x19, 0x01, 0x00, 0x00}
	b = append(b, u32(16)...)          // element size on disk
	b = append(b, stringTypeMsg(1)...) // base type
	return b
}

func contiguousLayoutMsg(addr uint64, size int) []byte {
	b := []byte{3, 1}
	b = append(b, u64(addr)...)
	return append(b, u64(uint64(size))...)
}

func (w *writer) writeDataset(ds *dataset) uint64 {
	if ds.chunkDims != nil {
		return w.writeChunkedFloat64s(ds)
	}

	var raw []byte
	var dtype []byte
	switch ds.dtype {
	case "f64":
		for _, v := range ds.f64s {
			raw = append(raw, u64(math.Float64bits(v))...)
		}
		dtype = float64TypeMsg()
	case "i32":
		for _, v := range ds.i32s {
			raw = append(raw, u32(int(v))...)
		}
		dtype = int32TypeMsg()
	case "str":
		for _, s := range ds.strs {
			cell := make([]byte, ds.strSize)
			copy(cell, s)
			raw = append(raw, cell...)
		}
		dtype = stringTypeMsg(ds.strSize)
	case "vstr":
		raw = w.writeVarStrings(ds.strs)
		dtype = varStringTypeMsg()
	}
	dataAddr := w.append(raw)

	return w.writeObjectHeader([]msg{
		{typ: 0x0001, body: dataspaceMsg(ds.dims)},
		{typ: 0x0003, body: dtype},
		{typ: 0x0008, body: contiguousLayoutMsg(dataAddr, len(raw))},
	})
}

// writeVarStrings emits a global heap collection and returns the raw
// dataset bytes: one 16-byte descriptor per string.
func (w *writer) writeVarStrings(values []string) []byte {
	var objs []byte
	for i, s := range values {
		objs = append(objs, u16(i+1)...)
		objs = append(objs, u16(0)...) // reference count
		objs = append(objs, u32(0)...)
		objs = append(objs, u64(uint64(len(s)))...)
		objs = append(objs, s...)
		for len(objs)%8 != 0 {
			objs = append(objs, 0)
		}
	}
	objs = append(objs, make([]byte, 16)...) // index 0 terminator

	col := make([]byte, 0, 16+len(objs))
	col = append(col, 'G', 'C', 'O', 'L', 1, 0, 0, 0)
	col = append(col, u64(uint64(16+len(objs)))...)
	col = append(col, objs...)
	colAddr := w.append(col)

	var raw []byte
	for i, s := range values {
		raw = append(raw, u32(len(s))...)
		raw = append(raw, u64(colAddr)...)
		raw = append(raw, u32(i+1)...)
	}
	return raw
}

func (w *writer) writeChunkedFloat64s(ds *dataset) uint64 {
	dims := ds.dims
	cdims := ds.chunkDims

	// Split the values into chunks, pad edge chunks, filter each chunk
	// and record its stored location.
	type chunk struct {
		offsets []uint64
		addr    uint64
		size    int
	}
	var chunks []chunk
	for _, off := range chunkOrigins(dims, cdims) {
		data := extractChunk(ds.f64s, dims, cdims, off)
		if ds.shuffle {
			data = shuffleBytes(data, 8)
		}
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		_, _ = zw.Write(data)
		_ = zw.Close()
		addr := w.append(z.Bytes())
		chunks = append(chunks, chunk{offsets: off, addr: addr, size: z.Len()})
	}

	// Chunk B-tree: a single level 0 node.
	bt := make([]byte, 0, 64)
	bt = append(bt, 'T', 'R', 'E', 'E', 1, 0)
	bt = append(bt, u16(len(chunks))...)
	bt = append(bt, u64(undef)...)
	bt = append(bt, u64(undef)...)
	for _, ch := range chunks {
		bt = append(bt, u32(ch.size)...)
		bt = append(bt, u32(0)...) // filter mask
		for _, o := range ch.offsets {
			bt = append(bt, u64(o)...)
		}
		bt = append(bt, u64(0)...) // element dimension
		bt = append(bt, u64(ch.addr)...)
	}
	// Final key: one past the last element in every dimension.
	bt = append(bt, u32(0)...)
	bt = append(bt, u32(0)...)
	for _, d := range dims {
		bt = append(bt, u64(uint64(d))...)
	}
	bt = append(bt, u64(0)...)
	btreeAddr := w.append(bt)

	layout := []byte{3, 2, byte(len(dims) + 1)}
	layout = append(layout, u64(btreeAddr)...)
	for _, d := range cdims {
		layout = append(layout, u32(d)...)
	}
	layout = append(layout, u32(8)...) // element size

	// Filter pipeline, version 1: optional shuffle then deflate.
	pipeline := []byte{1, 1, 0, 0, 0, 0, 0, 0}
	if ds.shuffle {
		pipeline[1] = 2
		pipeline = append(pipeline, u16(2)...) // shuffle
		pipeline = append(pipeline, u16(0)...)
		pipeline = append(pipeline, u16(0)...)
		pipeline = append(pipeline, u16(1)...)
		pipeline = append(pipeline, u32(8)...) // element size
		pipeline = append(pipeline, u32(0)...) // pad to even value count
	}
	pipeline = append(pipeline, u16(1)...) // deflate
	pipeline = append(pipeline, u16(0)...)
	pipeline = append(pipeline, u16(0)...)
	pipeline = append(pipeline, u16(1)...)
	pipeline = append(pipeline, u32(6)...) // level
	pipeline = append(pipeline, u32(0)...) // pad to even value count

	return w.writeObjectHeader([]msg{
		{typ: 0x0001, body: dataspaceMsg(dims)},
		{typ: 0x0003, body: float64TypeMsg()},
		{typ: 0x0008, body: layout},
		{typ: 0x000B, body: pipeline},
	})
}

// chunkOrigins enumerates the element offsets of every chunk in row-major
// order.
func chunkOrigins(dims, cdims []int) [][]uint64 {
	counts := make([]int, len(dims))
	total := 1
	for i := range dims {
		counts[i] = (dims[i] + cdims[i] - 1) / cdims[i]
		total *= counts[i]
	}
	out := make([][]uint64, 0, total)
	idx := make([]int, len(dims))
	for i := 0; i < total; i++ {
		off := make([]uint64, len(dims))
		for d := range dims {
			off[d] = uint64(idx[d] * cdims[d])
		}
		out = append(out, off)
		for d := len(dims) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < counts[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// extractChunk copies the chunk at the given origin into a full-size
// chunk buffer, zero-padding past the dataset bounds.
func extractChunk(values []float64, dims, cdims []int, off []uint64) []byte {
	chunkElems := 1
	for _, c := range cdims {
		chunkElems *= c
	}
	out := make([]byte, chunkElems*8)

	strides := make([]int, len(dims))
	s := 1
	for d := len(dims) - 1; d >= 0; d-- {
		strides[d] = s
		s *= dims[d]
	}
	cstrides := make([]int, len(cdims))
	s = 1
	for d := len(cdims) - 1; d >= 0; d-- {
		cstrides[d] = s
		s *= cdims[d]
	}

	idx := make([]int, len(cdims))
	for i := 0; i < chunkElems; i++ {
		inBounds := true
		src := 0
		for d := range idx {
			pos := int(off[d]) + idx[d]
			if pos >= dims[d] {
				inBounds = false
				break
			}
			src += pos * strides[d]
		}
		if inBounds {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(values[src]))
		}
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < cdims[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// shuffleBytes applies the HDF5 shuffle filter: byte i of every element
// is grouped together.
func shuffleBytes(data []byte, elem int) []byte {
	n := len(data) / elem
	out := make([]byte, len(data))
	for i := 0; i < elem; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = data[j*elem+i]
		}
	}
	return out
}
