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

// Header message types used by this package.
const (
	msgNil            = 0x0000
	msgDataspace      = 0x0001
	msgLinkInfo       = 0x0002
	msgDatatype       = 0x0003
	msgFillValueOld   = 0x0004
	msgFillValue      = 0x0005
	msgLink           = 0x0006
	msgLayout         = 0x0008
	msgGroupInfo      = 0x000A
	msgFilterPipeline = 0x000B
	msgAttribute      = 0x000C
	msgContinuation   = 0x0010
	msgSymbolTable    = 0x0011
)

type message struct {
	typ  uint16
	data []byte
}

type objectHeader struct {
	addr     uint64
	messages []message
}

func (oh *objectHeader) find(typ uint16) ([]byte, bool) {
	for _, m := range oh.messages {
		if m.typ == typ {
			return m.data, true
		}
	}
	return nil, false
}

func (oh *objectHeader) findAll(typ uint16) [][]byte {
	var out [][]byte
	for _, m := range oh.messages {
		if m.typ == typ {
			out = append(out, m.data)
		}
	}
	return out
}

// readObjectHeader parses a version 1 or version 2 object header,
// following continuation blocks.
func (f *File) readObjectHeader(addr uint64) (*objectHeader, error) {
	b, err := f.readAt(1, f.addr(addr))
	if err != nil {
		return nil, fmt.Errorf("error reading object header at %d: %w", addr, err)
	}
	if b[0] == 1 {
		return f.readObjectHeaderV1(addr)
	}
	return f.readObjectHeaderV2(addr)
}

func (f *File) readObjectHeaderV1(addr uint64) (*objectHeader, error) {
	prefix, err := f.readAt(16, f.addr(addr))
	if err != nil {
		return nil, fmt.Errorf("error reading object header prefix: %w", err)
	}
	c := &buf{b: prefix, f: f}
	c.skip(2) // version, reserved
	total := int(c.u16())
	c.skip(4) // reference count
	headerSize := int(c.u32())
	// Four bytes of padding follow the prefix so messages are 8-aligned.

	oh := &objectHeader{addr: addr}

	type block struct {
		off  int64
		size int
	}
	blocks := []block{{off: f.addr(addr) + 16, size: headerSize}}

	for len(blocks) > 0 && len(oh.messages) < total {
		blk := blocks[0]
		blocks = blocks[1:]

		data, err := f.readAt(blk.size, blk.off)
		if err != nil {
			return nil, fmt.Errorf("error reading object header block: %w", err)
		}
		c := &buf{b: data, f: f}
		for c.remaining() >= 8 && len(oh.messages) < total {
			typ := c.u16()
			size := int(c.u16())
			c.skip(4) // flags, reserved
			if size > c.remaining() {
				return nil, fmt.Errorf("hdf5: header message overruns block at %d", addr)
			}
			body := c.bytes(size)
			if typ == msgContinuation {
				cc := &buf{b: body, f: f}
				off := cc.offset()
				length := cc.length()
				if cc.err != nil {
					return nil, fmt.Errorf("hdf5: bad continuation message at %d: %w", addr, cc.err)
				}
				blocks = append(blocks, block{off: f.addr(off), size: int(length)})
			}
			oh.messages = append(oh.messages, message{typ: typ, data: body})
		}
	}
	return oh, nil
}

func (f *File) readObjectHeaderV2(addr uint64) (*objectHeader, error) {
	prefix, err := f.readAt(6, f.addr(addr))
	if err != nil {
		return nil, fmt.Errorf("error reading object header prefix: %w", err)
	}
	if string(prefix[:4]) != "OHDR" {
		return nil, fmt.Errorf("hdf5: bad object header signature at %d", addr)
	}
	if prefix[4] != 2 {
		return nil, fmt.Errorf("%w: object header version %d", ErrUnsupported, prefix[4])
	}
	flags := prefix[5]

	off := f.addr(addr) + 6
	if flags&0x20 != 0 {
		off += 16 // access, modification, change and birth times
	}
	if flags&0x10 != 0 {
		off += 4 // max compact / min dense attribute counts
	}
	sizeBytes := 1 << (flags & 0x3)
	sb, err := f.readAt(sizeBytes, off)
	if err != nil {
		return nil, fmt.Errorf("error reading object header size: %w", err)
	}
	chunkSize := int(f.uint(padUint(sb)))
	off += int64(sizeBytes)

	trackOrder := flags&0x04 != 0

	oh := &objectHeader{addr: addr}

	type block struct {
		off  int64
		size int
	}
	blocks := []block{{off: off, size: chunkSize}}

	for len(blocks) > 0 {
		blk := blocks[0]
		blocks = blocks[1:]

		data, err := f.readAt(blk.size, blk.off)
		if err != nil {
			return nil, fmt.Errorf("error reading object header block: %w", err)
		}
		c := &buf{b: data, f: f}
		minMsg := 4
		if trackOrder {
			minMsg = 6
		}
		// The last four bytes of a chunk hold its checksum, never a
		// message header.
		for c.remaining() >= minMsg+4 {
			typ := uint16(c.u8())
			size := int(c.u16())
			c.skip(1) // flags
			if trackOrder {
				c.skip(2) // creation order
			}
			if size > c.remaining() {
				break // trailing gap before the checksum
			}
			body := c.bytes(size)
			if typ == msgContinuation {
				cc := &buf{b: body, f: f}
				coff := cc.offset()
				clen := int(cc.length())
				if cc.err != nil {
					return nil, fmt.Errorf("hdf5: bad continuation message at %d: %w", addr, cc.err)
				}
				// Continuation blocks carry an OCHK signature and a
				// trailing checksum.
				if clen > 8 {
					blocks = append(blocks, block{off: f.addr(coff) + 4, size: clen - 8})
				}
			}
			oh.messages = append(oh.messages, message{typ: typ, data: body})
		}
	}
	return oh, nil
}

// padUint widens a 1-byte integer buffer so File.uint can decode it.
func padUint(b []byte) []byte {
	if len(b) == 1 {
		return []byte{b[0], 0}
	}
	return b
}
