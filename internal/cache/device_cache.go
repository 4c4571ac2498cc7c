// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package cache holds the one piece of state the device manager event loop
// shares across goroutine boundaries: the connected-device map and the
// in-flight connecting set (spec §5 "one shared concurrent device map is
// the sole cross-loop exception"). Every other field the event loop owns
// stays loop-local.
package cache

import (
	"sync"

	"github.com/nexhw/buttplug-go/pkg/device"
)

type deviceCache struct {
	mu         sync.RWMutex
	byIndex    map[uint32]*device.Definition
	byKey      map[string]uint32
	nextIndex  uint32
	connecting map[string]struct{}
}

var (
	dc     *deviceCache
	dcOnce sync.Once
)

// InitCache prepares the process-wide device cache. Safe to call more than
// once; only the first call has effect, matching the teacher's own
// sync.Once-guarded InitCache.
func InitCache() {
	dcOnce.Do(func() {
		dc = &deviceCache{
			byIndex:    make(map[uint32]*device.Definition),
			byKey:      make(map[string]uint32),
			connecting: make(map[string]struct{}),
		}
	})
}

// Devices returns the process-wide device cache singleton.
func Devices() *deviceCache {
	return dc
}

// All returns a snapshot slice of every connected device's definition, in no
// particular order.
func (c *deviceCache) All() []*device.Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*device.Definition, 0, len(c.byIndex))
	for _, d := range c.byIndex {
		out = append(out, d)
	}
	return out
}

// AllIndexed returns a snapshot of every connected device keyed by its
// wire-visible index, the shape internal/handler's RequestDeviceList case
// passes to callback.DeviceListEntries (spec §4.2 RequestDeviceList reply).
func (c *deviceCache) AllIndexed() map[uint32]*device.Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint32]*device.Definition, len(c.byIndex))
	for index, d := range c.byIndex {
		out[index] = d
	}
	return out
}

// ByIndex looks up a connected device by its wire-visible index.
func (c *deviceCache) ByIndex(index uint32) (*device.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byIndex[index]
	return d, ok
}

// ByIdentifier looks up a connected device, and its assigned index, by its
// stable cross-session identifier.
func (c *deviceCache) ByIdentifier(id device.Identifier) (*device.Definition, uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index, ok := c.byKey[id.String()]
	if !ok {
		return nil, 0, false
	}
	return c.byIndex[index], index, true
}

// Add inserts a newly connected device and assigns it the next free index.
// If the identifier already held a reserved index (spec §6.2 device
// configuration's ReservedIndex), that index is reused instead of
// allocating a fresh one.
func (c *deviceCache) Add(def *device.Definition) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var index uint32
	if def.UserConfig.ReservedIndex != nil {
		index = *def.UserConfig.ReservedIndex
		if index >= c.nextIndex {
			c.nextIndex = index + 1
		}
	} else {
		index = c.nextIndex
		c.nextIndex++
	}
	c.byIndex[index] = def
	c.byKey[def.Identifier.String()] = index
	return index
}

// Remove drops a device from the connected map on disconnect.
func (c *deviceCache) Remove(index uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byIndex[index]
	if !ok {
		return
	}
	delete(c.byIndex, index)
	delete(c.byKey, d.Identifier.String())
}

// TryBeginConnecting atomically checks that id is neither already connected
// nor already mid-connect, and if so marks it connecting. It reports
// whether the caller won the race and should proceed (spec §8 scenario
// "connecting-set dedup": two simultaneous discovery events for the same
// physical device must produce exactly one connection attempt).
func (c *deviceCache) TryBeginConnecting(id device.Identifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := id.String()
	if _, alreadyConnected := c.byKey[key]; alreadyConnected {
		return false
	}
	if _, alreadyConnecting := c.connecting[key]; alreadyConnecting {
		return false
	}
	c.connecting[key] = struct{}{}
	return true
}

// EndConnecting clears id from the connecting set, whether the attempt
// succeeded or failed. Must be called exactly once per successful
// TryBeginConnecting.
func (c *deviceCache) EndConnecting(id device.Identifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connecting, id.String())
}

// IsConnectingOrConnected reports whether id currently occupies either set,
// under the read lock only. The device manager does not call it; its
// discovery dedup goes through TryBeginConnecting.
func (c *deviceCache) IsConnectingOrConnected(id device.Identifier) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := id.String()
	_, connected := c.byKey[key]
	_, connecting := c.connecting[key]
	return connected || connecting
}
