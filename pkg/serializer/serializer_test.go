// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/message"
)

func TestSniffFirstMessageV4(t *testing.T) {
	raw := []byte(`[{"RequestServerInfo":{"Id":1,"ClientName":"demo","ProtocolVersionMajor":4,"ProtocolVersionMinor":0}}]`)

	info, err := SniffFirstMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, message.V4, info.DeclaredVersion())
}

func TestSniffFirstMessageLegacyField(t *testing.T) {
	raw := []byte(`[{"RequestServerInfo":{"Id":1,"ClientName":"demo","MessageVersion":2}}]`)

	info, err := SniffFirstMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, message.V2, info.DeclaredVersion())
}

func TestSniffFirstMessageRejectsOtherFirstMessage(t *testing.T) {
	raw := []byte(`[{"Ping":{"Id":1}}]`)

	_, err := SniffFirstMessage(raw)
	require.Error(t, err)
	assert.Equal(t, errtype.KindInit, errtype.KindOf(err))
}

func TestSniffFirstMessageRejectsEmptyFrame(t *testing.T) {
	_, err := SniffFirstMessage([]byte(`[]`))
	require.Error(t, err)
	assert.Equal(t, errtype.KindMessage, errtype.KindOf(err))
}

func TestSniffFirstMessageRejectsBinaryFrame(t *testing.T) {
	_, err := SniffFirstMessage([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.Equal(t, errtype.KindMessage, errtype.KindOf(err))
}

func TestDecodeFrameV4(t *testing.T) {
	raw := []byte(`[{"Ping":{"Id":2}},{"StartScanning":{"Id":3}}]`)

	msgs, err := DecodeFrame(message.V4, raw)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, message.Ping{Id: 2}, msgs[0])
	assert.Equal(t, message.StartScanning{Id: 3}, msgs[1])
}

func TestDecodeFrameV1VibrateCmd(t *testing.T) {
	raw := []byte(`[{"VibrateCmd":{"Id":4,"DeviceIndex":0,"Speeds":[{"Index":0,"Speed":0.5}]}}]`)

	msgs, err := DecodeFrame(message.V1, raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	vc, ok := msgs[0].(message.VibrateCmd)
	require.True(t, ok)
	assert.Equal(t, uint32(0), vc.DeviceIndex)
	require.Len(t, vc.Speeds, 1)
	assert.Equal(t, 0.5, vc.Speeds[0].Speed)
}

func TestDecodeFrameUnknownTypeAtVersion(t *testing.T) {
	raw := []byte(`[{"ScalarCmd":{"Id":5,"DeviceIndex":0,"Scalars":[]}}]`)

	_, err := DecodeFrame(message.V1, raw)
	require.Error(t, err)
	assert.Equal(t, errtype.KindMessage, errtype.KindOf(err))
}

func TestDecodeFrameRejectsMultiKeyObject(t *testing.T) {
	raw := []byte(`[{"Ping":{"Id":1},"StopScanning":{"Id":2}}]`)

	_, err := DecodeFrame(message.V4, raw)
	require.Error(t, err)
}

func TestEncodeFrameRoundTrips(t *testing.T) {
	out, err := EncodeFrame(message.Ok{Id: 7}, message.ScanningFinished{})
	require.NoError(t, err)

	msgs, err := DecodeFrame(message.V4, out)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, message.Ok{Id: 7}, msgs[0])
}

func TestVersionLockFirstWriterWins(t *testing.T) {
	var lock VersionLock

	assert.True(t, lock.Lock(message.V4))
	assert.False(t, lock.Lock(message.V3))

	v, locked := lock.Version()
	assert.True(t, locked)
	assert.Equal(t, message.V4, v)
}
