//go:build !linux

package main

import (
	"errors"

	"stivos/kernel/mm"
)

var errArenaUnsupported = errors.New("simulated physical memory is only supported on linux")

// Arena is not available on this platform.
type Arena struct{}

// NewArena always fails on this platform.
func NewArena(size uint64) (*Arena, error) { return nil, errArenaUnsupported }

func (a *Arena) DirectMapOffset() uintptr                    { return 0 }
func (a *Arena) Pages(addr mm.PhysAddr, count uint64) []byte { return nil }
func (a *Arena) Close() error                                { return nil }
