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
	"sort"
)

// Group is an HDF5 group: a named collection of child groups and datasets.
type Group struct {
	f     *File
	name  string
	oh    *objectHeader
	links map[string]uint64 // child name to object header address
	order []string          // child names, sorted
}

func (f *File) openGroup(name string, addr uint64) (*Group, error) {
	oh, err := f.readObjectHeader(addr)
	if err != nil {
		return nil, fmt.Errorf("error opening group %q: %w", name, err)
	}
	g := &Group{f: f, name: name, oh: oh, links: make(map[string]uint64)}
	if err := g.readLinks(); err != nil {
		return nil, fmt.Errorf("error reading links of group %q: %w", name, err)
	}
	sort.Strings(g.order)
	return g, nil
}

func (g *Group) readLinks() error {
	if st, ok := g.oh.find(msgSymbolTable); ok {
		c := &buf{b: st, f: g.f}
		btreeAddr := c.offset()
		heapAddr := c.offset()
		if c.err != nil {
			return c.err
		}
		return g.readSymbolTableLinks(btreeAddr, heapAddr)
	}

	if li, ok := g.oh.find(msgLinkInfo); ok {
		c := &buf{b: li, f: g.f}
		c.skip(1) // version
		flags := c.u8()
		if flags&0x1 != 0 {
			c.skip(8) // maximum creation index
		}
		fractalHeap := c.offset()
		if c.err != nil {
			return c.err
		}
		if !g.f.undefined(fractalHeap) {
			return fmt.Errorf("%w: dense link storage", ErrUnsupported)
		}
	}

	for _, lm := range g.oh.findAll(msgLink) {
		name, addr, err := g.f.parseLinkMessage(lm)
		if err != nil {
			return err
		}
		g.add(name, addr)
	}
	return nil
}

func (g *Group) readSymbolTableLinks(btreeAddr, heapAddr uint64) error {
	heap, err := g.f.readLocalHeap(heapAddr)
	if err != nil {
		return err
	}
	return g.f.walkGroupBtree(btreeAddr, func(ent symbolEntry) error {
		name, err := heap.name(ent.nameOffset)
		if err != nil {
			return err
		}
		g.add(name, ent.headerAddr)
		return nil
	})
}

func (g *Group) add(name string, addr uint64) {
	if _, ok := g.links[name]; !ok {
		g.order = append(g.order, name)
	}
	g.links[name] = addr
}

// parseLinkMessage decodes a hard link message into its name and target
// object header address. Soft and external links are unsupported.
func (f *File) parseLinkMessage(b []byte) (string, uint64, error) {
	c := &buf{b: b, f: f}
	if v := c.u8(); v != 1 {
		return "", 0, fmt.Errorf("%w: link message version %d", ErrUnsupported, v)
	}
	flags := c.u8()
	linkType := uint8(0)
	if flags&0x8 != 0 {
		linkType = c.u8()
	}
	if flags&0x4 != 0 {
		c.skip(8) // creation order
	}
	if flags&0x10 != 0 {
		c.skip(1) // character set
	}
	nameLen := int(f.uint(padUint(c.bytes(1 << (flags & 0x3)))))
	name := string(c.bytes(nameLen))
	if linkType != 0 {
		return "", 0, fmt.Errorf("%w: link type %d for %q", ErrUnsupported, linkType, name)
	}
	target := c.offset()
	if c.err != nil {
		return "", 0, c.err
	}
	return name, target, nil
}

// Name returns the group's name within its parent.
func (g *Group) Name() string { return g.name }

// Children returns the names of all child objects in sorted order.
func (g *Group) Children() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Exists reports whether a child object with the given name exists.
func (g *Group) Exists(name string) bool {
	_, ok := g.links[name]
	return ok
}

// Group opens the named child group.
func (g *Group) Group(name string) (*Group, error) {
	addr, ok := g.links[name]
	if !ok {
		return nil, fmt.Errorf("%w: group %q in %q", ErrNotFound, name, g.name)
	}
	return g.f.openGroup(name, addr)
}

// Dataset opens the named child dataset.
func (g *Group) Dataset(name string) (*Dataset, error) {
	addr, ok := g.links[name]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q in %q", ErrNotFound, name, g.name)
	}
	return g.f.openDataset(name, addr)
}

// Groups opens every child that is a group, in sorted name order.
func (g *Group) Groups() ([]*Group, error) {
	var out []*Group
	for _, name := range g.order {
		oh, err := g.f.readObjectHeader(g.links[name])
		if err != nil {
			return nil, err
		}
		if _, ok := oh.find(msgDatatype); ok {
			continue // dataset
		}
		child, err := g.Group(name)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}
