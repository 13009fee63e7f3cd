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
	"fmt"
)

// localHeap holds the data segment of a group's local heap, which stores
// link names referenced by symbol table entries.
type localHeap struct {
	data []byte
}

func (f *File) readLocalHeap(addr uint64) (*localHeap, error) {
	hdrSize := 8 + 1 + 3 + 2*f.sb.lenSize + f.sb.offSize
	b, err := f.readAt(hdrSize, f.addr(addr))
	if err != nil {
		return nil, fmt.Errorf("error reading local heap header: %w", err)
	}
	if string(b[:4]) != "HEAP" {
		return nil, fmt.Errorf("hdf5: bad local heap signature at %d", addr)
	}
	c := &buf{b: b[8:], f: f}
	c.skip(4) // version, reserved
	segSize := int(c.length())
	c.skip(f.sb.lenSize) // free list head offset
	segAddr := c.offset()

	data, err := f.readAt(segSize, f.addr(segAddr))
	if err != nil {
		return nil, fmt.Errorf("error reading local heap data: %w", err)
	}
	return &localHeap{data: data}, nil
}

// name returns the NUL-terminated string at the given heap offset.
func (h *localHeap) name(off uint64) (string, error) {
	if off >= uint64(len(h.data)) {
		return "", fmt.Errorf("hdf5: heap offset %d out of range", off)
	}
	end := bytes.IndexByte(h.data[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("hdf5: unterminated heap string at %d", off)
	}
	return string(h.data[off : int(off)+end]), nil
}

// readGlobalHeapObject fetches object idx from the global heap collection
// at addr. Variable-length data elements reference the heap this way.
func (f *File) readGlobalHeapObject(addr uint64, idx uint32) ([]byte, error) {
	hdr, err := f.readAt(8+f.sb.lenSize, f.addr(addr))
	if err != nil {
		return nil, fmt.Errorf("error reading global heap header: %w", err)
	}
	if string(hdr[:4]) != "GCOL" {
		return nil, fmt.Errorf("hdf5: bad global heap signature at %d", addr)
	}
	c := &buf{b: hdr[8:], f: f}
	collectionSize := int(c.length())

	body, err := f.readAt(collectionSize, f.addr(addr))
	if err != nil {
		return nil, fmt.Errorf("error reading global heap collection: %w", err)
	}
	c = &buf{b: body, f: f}
	c.skip(8 + f.sb.lenSize) // signature, version, reserved, collection size

	for c.remaining() >= 8+f.sb.lenSize {
		index := c.u16()
		c.skip(2 + 4) // reference count, reserved
		size := int(c.length())
		if index == 0 {
			break // free space terminator
		}
		if size < 0 || size > c.remaining() {
			return nil, fmt.Errorf("hdf5: global heap object %d overruns collection", index)
		}
		data := c.bytes(size)
		if uint32(index) == idx {
			return data, nil
		}
		// Objects are padded to a multiple of eight bytes.
		if pad := (8 - size%8) % 8; pad <= c.remaining() {
			c.skip(pad)
		}
	}
	return nil, fmt.Errorf("hdf5: global heap object %d not found at %d", idx, addr)
}
