// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

func loadedManager(t *testing.T) *DeviceConfigManager {
	t.Helper()
	m := NewDeviceConfigManager()
	require.NoError(t, m.LoadBaseConfig("./testdata/base.json"))
	require.NoError(t, m.LoadUserConfig("./testdata/user.yaml"))
	return m
}

func TestMatchBySpecifierKindAndPattern(t *testing.T) {
	m := loadedManager(t)

	spec, ok := m.Match(protocol.CommSpecifier{Kind: protocol.SpecifierBluetoothLE, Name: "GenericVibe-1234"})
	require.True(t, ok)
	assert.Equal(t, "genericvibe", spec.ProtocolName)
	require.Len(t, spec.Features, 2)

	_, ok = m.Match(protocol.CommSpecifier{Kind: protocol.SpecifierBluetoothLE, Name: "SomethingElse"})
	assert.False(t, ok)

	spec, ok = m.Match(protocol.CommSpecifier{Kind: protocol.SpecifierSerial, Address: "/dev/ttyUSB0"})
	require.True(t, ok)
	assert.Equal(t, "fleshlightlaunch", spec.ProtocolName)
}

func TestBuildDefinitionAppliesUserOverride(t *testing.T) {
	m := loadedManager(t)

	spec, ok := m.Match(protocol.CommSpecifier{Kind: protocol.SpecifierBluetoothLE, Name: "GenericVibe-1234"})
	require.True(t, ok)

	id := device.Identifier{ProtocolName: "genericvibe", AttributesIdentifier: "GenericVibe-1234"}
	def := m.BuildDefinition(id, "GenericVibe-1234", spec)

	assert.Equal(t, "Bedside Toy", def.EffectiveDisplayName())
	actuator, ok := def.Features[0].AcceptsOutput(feature.OutputVibrate)
	require.True(t, ok)
	assert.Equal(t, int32(10), actuator.StepLimit.End)
}

func TestIsAllowedRespectsDenyList(t *testing.T) {
	m := loadedManager(t)

	denied := device.Identifier{ProtocolName: "genericvibe", AttributesIdentifier: "GenericVibe-denied"}
	assert.False(t, m.IsAllowed(denied))

	unknown := device.Identifier{ProtocolName: "genericvibe", AttributesIdentifier: "GenericVibe-9999"}
	assert.True(t, m.IsAllowed(unknown))
}

func TestRegisterHandlerAttachesFactory(t *testing.T) {
	m := loadedManager(t)
	m.RegisterHandler("genericvibe", func() protocol.Handler { return nil })

	spec, ok := m.Match(protocol.CommSpecifier{Kind: protocol.SpecifierBluetoothLE, Name: "GenericVibe-1234"})
	require.True(t, ok)
	assert.NotNil(t, spec.NewHandler)
}
