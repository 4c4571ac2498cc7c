// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/cache"
	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/config"
	"github.com/nexhw/buttplug-go/internal/devicemanager"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/pkg/message"
	"github.com/nexhw/buttplug-go/pkg/serializer"
)

// fakeTransport is an in-memory Transport double, mirroring the one
// pkg/connector uses to test RemoteConnector against a scripted peer.
type fakeTransport struct {
	mu       sync.Mutex
	closed   bool
	inbound  chan []byte
	outbound chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 16),
	}
}

func (f *fakeTransport) ReadMessage() (bool, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return false, nil, errors.New("transport closed")
	}
	return false, data, nil
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("transport closed")
	}
	f.mu.Unlock()
	f.outbound <- data
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbound)
	return nil
}

func newTestSession(t *testing.T) (*Session, *devicemanager.Manager, func()) {
	t.Helper()
	cache.InitCache()

	log := common.NopLoggingClient{}
	timers := scheduler.NewManager(log)
	cfg := config.NewDeviceConfigManager()
	dm := devicemanager.New(cfg, timers, log, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go dm.Run(ctx)

	hub := NewHub(dm, log)
	s := NewSession(dm, hub, timers, log, "buttplug-go-test-server", message.V4, 0)
	return s, dm, func() {
		cancel()
		timers.StopAll()
	}
}

func firstFrameElement(t *testing.T, raw []byte) map[string]json.RawMessage {
	t.Helper()
	var elements []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &elements))
	require.Len(t, elements, 1)
	return elements[0]
}

func TestSessionHandshakeThenDeviceList(t *testing.T) {
	s, _, stop := newTestSession(t)
	defer stop()
	transport := newFakeTransport()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), transport) }()

	reqInfo, err := serializer.EncodeFrame(message.RequestServerInfo{Id: 1, ClientName: "test-client", ProtocolVersionMajor: 4})
	require.NoError(t, err)
	transport.inbound <- reqInfo

	reply := <-transport.outbound
	el := firstFrameElement(t, reply)
	payload, ok := el["ServerInfo"]
	require.True(t, ok, "expected a ServerInfo reply, got %s", reply)
	var info message.ServerInfo
	require.NoError(t, json.Unmarshal(payload, &info))
	assert.Equal(t, message.ID(1), info.Id)
	assert.Equal(t, message.V4, info.MessageVersion)

	listReq, err := serializer.EncodeFrame(message.RequestDeviceList{Id: 2})
	require.NoError(t, err)
	transport.inbound <- listReq

	reply = <-transport.outbound
	el = firstFrameElement(t, reply)
	payload, ok = el["DeviceList"]
	require.True(t, ok, "expected a DeviceList reply, got %s", reply)
	var list message.DeviceList
	require.NoError(t, json.Unmarshal(payload, &list))
	assert.Equal(t, message.ID(2), list.Id)
	assert.Empty(t, list.Devices)

	require.NoError(t, transport.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session.Run did not return after transport closed")
	}
}

func TestSessionHandshakeMustComeFirst(t *testing.T) {
	s, _, stop := newTestSession(t)
	defer stop()
	transport := newFakeTransport()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), transport) }()

	pingFirst, err := serializer.EncodeFrame(message.Ping{Id: 1})
	require.NoError(t, err)
	transport.inbound <- pingFirst

	reply := <-transport.outbound
	el := firstFrameElement(t, reply)
	payload, ok := el["Error"]
	require.True(t, ok, "expected an Error reply, got %s", reply)
	var errMsg message.Error
	require.NoError(t, json.Unmarshal(payload, &errMsg))
	assert.Equal(t, message.ID(1), errMsg.Id)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session.Run did not return after a non-handshake first frame")
	}
}
