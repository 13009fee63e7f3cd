// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package hdf5 implements a read-only parser for the subset of the HDF5
// file format used by SNIRF recordings: superblock versions 0 through 3,
// version 1 and 2 object headers, symbol-table and link-message groups,
// and compact, contiguous and chunked dataset layouts with the deflate
// and shuffle filters.
package hdf5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

var (
	// ErrNotFound is returned when a named group or dataset does not exist.
	ErrNotFound = errors.New("hdf5: object not found")
	// ErrUnsupported is returned for valid HDF5 constructs outside the
	// subset this package reads.
	ErrUnsupported = errors.New("hdf5: unsupported feature")
)

// File is an open HDF5 file.
type File struct {
	r  io.ReaderAt
	sb superblock
}

type superblock struct {
	version   uint8
	offSize   int // size of offsets in bytes
	lenSize   int // size of lengths in bytes
	baseAddr  uint64
	eofAddr   uint64
	rootAddr  uint64 // root group object header address
	rootBtree uint64 // cached from the root symbol table entry, v0/v1 only
	rootHeap  uint64
}

// Open parses the superblock and returns a handle to the file. The reader
// must remain valid for the lifetime of the returned File.
func Open(r io.ReaderAt) (*File, error) {
	f := &File{r: r}
	if err := f.readSuperblock(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) readSuperblock() error {
	b := make([]byte, 8)
	if _, err := f.r.ReadAt(b, 0); err != nil {
		return fmt.Errorf("error reading signature: %w", err)
	}
	if string(b) != string(signature) {
		return errors.New("hdf5: bad signature")
	}

	var v [1]byte
	if _, err := f.r.ReadAt(v[:], 8); err != nil {
		return fmt.Errorf("error reading superblock version: %w", err)
	}
	f.sb.version = v[0]

	switch f.sb.version {
	case 0, 1:
		return f.readSuperblockV0()
	case 2, 3:
		return f.readSuperblockV2()
	default:
		return fmt.Errorf("%w: superblock version %d", ErrUnsupported, f.sb.version)
	}
}

func (f *File) readSuperblockV0() error {
	// Fixed-size prefix through the file consistency flags.
	b := make([]byte, 16)
	if _, err := f.r.ReadAt(b, 8); err != nil {
		return fmt.Errorf("error reading superblock: %w", err)
	}
	f.sb.offSize = int(b[5])
	f.sb.lenSize = int(b[6])
	if err := f.checkSizes(); err != nil {
		return err
	}

	off := int64(24)
	if f.sb.version == 1 {
		off += 4 // indexed storage internal node k + reserved
	}

	addrs := make([]byte, 4*f.sb.offSize)
	if _, err := f.r.ReadAt(addrs, off); err != nil {
		return fmt.Errorf("error reading superblock addresses: %w", err)
	}
	f.sb.baseAddr = f.uint(addrs[:f.sb.offSize])
	f.sb.eofAddr = f.uint(addrs[2*f.sb.offSize : 3*f.sb.offSize])
	off += int64(4 * f.sb.offSize)

	// Root group symbol table entry.
	ent, err := f.readSymbolEntry(uint64(off))
	if err != nil {
		return fmt.Errorf("error reading root symbol table entry: %w", err)
	}
	f.sb.rootAddr = ent.headerAddr
	f.sb.rootBtree = ent.btreeAddr
	f.sb.rootHeap = ent.heapAddr
	return nil
}

func (f *File) readSuperblockV2() error {
	b := make([]byte, 3)
	if _, err := f.r.ReadAt(b, 9); err != nil {
		return fmt.Errorf("error reading superblock: %w", err)
	}
	f.sb.offSize = int(b[0])
	f.sb.lenSize = int(b[1])
	if err := f.checkSizes(); err != nil {
		return err
	}

	addrs := make([]byte, 4*f.sb.offSize)
	if _, err := f.r.ReadAt(addrs, 12); err != nil {
		return fmt.Errorf("error reading superblock addresses: %w", err)
	}
	f.sb.baseAddr = f.uint(addrs[:f.sb.offSize])
	f.sb.eofAddr = f.uint(addrs[2*f.sb.offSize : 3*f.sb.offSize])
	f.sb.rootAddr = f.uint(addrs[3*f.sb.offSize:])
	return nil
}

func (f *File) checkSizes() error {
	ok := func(n int) bool { return n == 2 || n == 4 || n == 8 }
	if !ok(f.sb.offSize) || !ok(f.sb.lenSize) {
		return fmt.Errorf("%w: offset size %d, length size %d", ErrUnsupported, f.sb.offSize, f.sb.lenSize)
	}
	return nil
}

// Root returns the root group of the file.
func (f *File) Root() (*Group, error) {
	return f.openGroup("/", f.sb.rootAddr)
}

// Group resolves a slash-separated path to a group.
func (f *File) Group(path string) (*Group, error) {
	g, err := f.Root()
	if err != nil {
		return nil, err
	}
	for _, name := range splitPath(path) {
		g, err = g.Group(name)
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Dataset resolves a slash-separated path to a dataset.
func (f *File) Dataset(path string) (*Dataset, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	g, err := f.Root()
	if err != nil {
		return nil, err
	}
	for _, name := range parts[:len(parts)-1] {
		g, err = g.Group(name)
		if err != nil {
			return nil, err
		}
	}
	return g.Dataset(parts[len(parts)-1])
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// uint decodes a little-endian unsigned integer of 2, 4 or 8 bytes.
func (f *File) uint(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// undefined reports whether an address is the undefined address (all ones).
func (f *File) undefined(addr uint64) bool {
	switch f.sb.offSize {
	case 2:
		return addr == 0xFFFF
	case 4:
		return addr == 0xFFFFFFFF
	default:
		return addr == 0xFFFFFFFFFFFFFFFF
	}
}

// addr resolves a file address against the base address.
func (f *File) addr(a uint64) int64 {
	return int64(f.sb.baseAddr + a)
}

func (f *File) readAt(n int, off int64) ([]byte, error) {
	if n < 0 || n > 1<<34 {
		return nil, fmt.Errorf("hdf5: implausible read of %d bytes at offset %d", n, off)
	}
	b := make([]byte, n)
	if _, err := f.r.ReadAt(b, off); err != nil {
		return nil, fmt.Errorf("error reading %d bytes at offset %d: %w", n, off, err)
	}
	return b, nil
}

// buf is a cursor over a byte slice used when decoding structures whose
// field widths depend on the superblock's offset and length sizes. Reads
// past the end of the slice set err and yield zeroes; callers check err
// once after decoding instead of bounds-checking every field.
type buf struct {
	b   []byte
	pos int
	f   *File
	err error
}

func (c *buf) remaining() int { return len(c.b) - c.pos }

func (c *buf) skip(n int) { c.pos += n }

func (c *buf) bytes(n int) []byte {
	if n < 0 || n > c.remaining() {
		if c.err == nil {
			c.err = fmt.Errorf("hdf5: truncated structure: %d bytes wanted at offset %d of %d", n, c.pos, len(c.b))
		}
		c.pos = len(c.b)
		return make([]byte, 8)
	}
	b := c.b[c.pos : c.pos+n]
	c.pos += n
	return b
}

func (c *buf) u8() uint8   { return c.bytes(1)[0] }
func (c *buf) u16() uint16 { return binary.LittleEndian.Uint16(c.bytes(2)) }
func (c *buf) u32() uint32 { return binary.LittleEndian.Uint32(c.bytes(4)) }
func (c *buf) u64() uint64 { return binary.LittleEndian.Uint64(c.bytes(8)) }

func (c *buf) offset() uint64 { return c.f.uint(c.bytes(c.f.sb.offSize)) }
func (c *buf) length() uint64 { return c.f.uint(c.bytes(c.f.sb.lenSize)) }
