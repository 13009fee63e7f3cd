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
	"fmt"
)

// symbolEntry is a symbol table entry as stored in SNOD nodes and the
// superblock.
type symbolEntry struct {
	nameOffset uint64
	headerAddr uint64
	cacheType  uint32
	btreeAddr  uint64 // scratch, valid when cacheType is 1
	heapAddr   uint64
}

func (f *File) symbolEntrySize() int {
	return 2*f.sb.offSize + 8 + 16
}

func (f *File) readSymbolEntry(off uint64) (symbolEntry, error) {
	b, err := f.readAt(f.symbolEntrySize(), int64(off))
	if err != nil {
		return symbolEntry{}, err
	}
	return f.parseSymbolEntry(&buf{b: b, f: f}), nil
}

func (f *File) parseSymbolEntry(c *buf) symbolEntry {
	var ent symbolEntry
	ent.nameOffset = c.offset()
	ent.headerAddr = c.offset()
	ent.cacheType = c.u32()
	c.skip(4) // reserved
	scratch := &buf{b: c.bytes(16), f: f}
	if ent.cacheType == 1 {
		ent.btreeAddr = scratch.offset()
		ent.heapAddr = scratch.offset()
	}
	return ent
}

// maxBtreeDepth bounds B-tree recursion so that a corrupt node cycle
// fails instead of overflowing the stack.
const maxBtreeDepth = 16

// walkGroupBtree visits every symbol table entry reachable from a version 1
// group B-tree node, in key order.
func (f *File) walkGroupBtree(addr uint64, visit func(symbolEntry) error) error {
	return f.walkGroupBtreeDepth(addr, 0, visit)
}

func (f *File) walkGroupBtreeDepth(addr uint64, depth int, visit func(symbolEntry) error) error {
	if depth > maxBtreeDepth {
		return fmt.Errorf("hdf5: group btree deeper than %d at %d", maxBtreeDepth, addr)
	}
	hdr, err := f.readAt(8+2*f.sb.offSize, f.addr(addr))
	if err != nil {
		return fmt.Errorf("error reading btree node: %w", err)
	}
	if string(hdr[:4]) != "TREE" {
		return fmt.Errorf("hdf5: bad btree signature at %d", addr)
	}
	nodeType := hdr[4]
	level := hdr[5]
	entries := int(f.uint(hdr[6:8]))
	if nodeType != 0 {
		return fmt.Errorf("hdf5: expected group btree node at %d, got type %d", addr, nodeType)
	}

	// Keys are heap offsets (length size) interleaved with child pointers.
	body, err := f.readAt(entries*(f.sb.lenSize+f.sb.offSize)+f.sb.lenSize, f.addr(addr)+int64(8+2*f.sb.offSize))
	if err != nil {
		return fmt.Errorf("error reading btree entries: %w", err)
	}
	c := &buf{b: body, f: f}
	for i := 0; i < entries; i++ {
		c.skip(f.sb.lenSize) // key
		child := c.offset()
		if level > 0 {
			if err := f.walkGroupBtreeDepth(child, depth+1, visit); err != nil {
				return err
			}
			continue
		}
		if err := f.walkSnod(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// walkSnod visits the symbol table entries of a symbol table node.
func (f *File) walkSnod(addr uint64, visit func(symbolEntry) error) error {
	hdr, err := f.readAt(8, f.addr(addr))
	if err != nil {
		return fmt.Errorf("error reading symbol table node: %w", err)
	}
	if string(hdr[:4]) != "SNOD" {
		return fmt.Errorf("hdf5: bad symbol table node signature at %d", addr)
	}
	count := int(f.uint(hdr[6:8]))

	body, err := f.readAt(count*f.symbolEntrySize(), f.addr(addr)+8)
	if err != nil {
		return fmt.Errorf("error reading symbol table entries: %w", err)
	}
	c := &buf{b: body, f: f}
	for i := 0; i < count; i++ {
		if err := visit(f.parseSymbolEntry(c)); err != nil {
			return err
		}
	}
	return nil
}

// chunkInfo describes one stored chunk of a chunked dataset.
type chunkInfo struct {
	size       int      // stored (possibly filtered) byte size
	filterMask uint32
	offsets    []uint64 // logical element offsets, one per dataset dimension
	addr       uint64
}

// walkChunkBtree visits every chunk reachable from a version 1 chunk
// B-tree node. ndims is the dataset dimensionality; stored keys carry one
// extra trailing offset for the element dimension.
func (f *File) walkChunkBtree(addr uint64, ndims int, visit func(chunkInfo) error) error {
	return f.walkChunkBtreeDepth(addr, ndims, 0, visit)
}

func (f *File) walkChunkBtreeDepth(addr uint64, ndims, depth int, visit func(chunkInfo) error) error {
	if depth > maxBtreeDepth {
		return fmt.Errorf("hdf5: chunk btree deeper than %d at %d", maxBtreeDepth, addr)
	}
	hdr, err := f.readAt(8+2*f.sb.offSize, f.addr(addr))
	if err != nil {
		return fmt.Errorf("error reading chunk btree node: %w", err)
	}
	if string(hdr[:4]) != "TREE" {
		return fmt.Errorf("hdf5: bad btree signature at %d", addr)
	}
	if hdr[4] != 1 {
		return fmt.Errorf("hdf5: expected chunk btree node at %d, got type %d", addr, hdr[4])
	}
	level := hdr[5]
	entries := int(f.uint(hdr[6:8]))

	keySize := 8 + 8*(ndims+1)
	body, err := f.readAt(entries*(keySize+f.sb.offSize)+keySize, f.addr(addr)+int64(8+2*f.sb.offSize))
	if err != nil {
		return fmt.Errorf("error reading chunk btree entries: %w", err)
	}
	c := &buf{b: body, f: f}
	for i := 0; i < entries; i++ {
		var info chunkInfo
		info.size = int(c.u32())
		info.filterMask = c.u32()
		info.offsets = make([]uint64, ndims)
		for d := 0; d < ndims; d++ {
			info.offsets[d] = c.u64()
		}
		c.skip(8) // element dimension offset, always zero
		info.addr = c.offset()

		if level > 0 {
			if err := f.walkChunkBtreeDepth(info.addr, ndims, depth+1, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(info); err != nil {
			return err
		}
	}
	return nil
}
