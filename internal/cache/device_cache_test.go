// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexhw/buttplug-go/pkg/device"
)

func freshCache() {
	dc = &deviceCache{
		byIndex:    make(map[uint32]*device.Definition),
		byKey:      make(map[string]uint32),
		connecting: make(map[string]struct{}),
	}
}

func TestAddAssignsSequentialIndices(t *testing.T) {
	freshCache()

	d1 := &device.Definition{Identifier: device.Identifier{Address: "aa", ProtocolName: "genericvibe"}}
	d2 := &device.Definition{Identifier: device.Identifier{Address: "bb", ProtocolName: "genericvibe"}}

	i1 := Devices().Add(d1)
	i2 := Devices().Add(d2)

	assert.Equal(t, uint32(0), i1)
	assert.Equal(t, uint32(1), i2)
	assert.Len(t, Devices().All(), 2)
}

func TestAddHonorsReservedIndex(t *testing.T) {
	freshCache()

	reserved := uint32(7)
	d := &device.Definition{
		Identifier: device.Identifier{Address: "aa", ProtocolName: "genericvibe"},
		UserConfig: device.UserConfig{ReservedIndex: &reserved},
	}
	idx := Devices().Add(d)
	assert.Equal(t, reserved, idx)

	next := Devices().Add(&device.Definition{Identifier: device.Identifier{Address: "bb", ProtocolName: "genericvibe"}})
	assert.Equal(t, uint32(8), next)
}

func TestRemoveDropsFromBothIndexes(t *testing.T) {
	freshCache()

	id := device.Identifier{Address: "aa", ProtocolName: "genericvibe"}
	def := &device.Definition{Identifier: id}
	idx := Devices().Add(def)

	Devices().Remove(idx)

	_, ok := Devices().ByIndex(idx)
	assert.False(t, ok)
	_, _, ok = Devices().ByIdentifier(id)
	assert.False(t, ok)
}

func TestTryBeginConnectingDedupesConcurrentDiscovery(t *testing.T) {
	freshCache()

	id := device.Identifier{Address: "aa", ProtocolName: "genericvibe"}

	first := Devices().TryBeginConnecting(id)
	second := Devices().TryBeginConnecting(id)

	assert.True(t, first)
	assert.False(t, second, "a second concurrent connect attempt for the same identifier must be rejected")

	Devices().EndConnecting(id)
	third := Devices().TryBeginConnecting(id)
	assert.True(t, third, "after EndConnecting a fresh attempt must be allowed")
}

func TestTryBeginConnectingRejectsAlreadyConnected(t *testing.T) {
	freshCache()

	id := device.Identifier{Address: "aa", ProtocolName: "genericvibe"}
	Devices().Add(&device.Definition{Identifier: id})

	assert.False(t, Devices().TryBeginConnecting(id))
}
