// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package hardware

import (
	"context"
	"sync"
)

// MockHardware is an in-memory Hardware used by protocol-handler and
// server-device tests: every WriteValue call is recorded, and ReadValue returns canned
// responses set up by the test via SetReadResponse.
type MockHardware struct {
	baseHardware

	mu       sync.Mutex
	writes   []WriteCmd
	reads    map[Endpoint][]byte
	disconnected bool
}

func NewMockHardware(name, address string, endpoints []Endpoint) *MockHardware {
	return &MockHardware{
		baseHardware: newBaseHardware(name, address, endpoints, 0),
		reads:        make(map[Endpoint][]byte),
	}
}

func (m *MockHardware) SetReadResponse(e Endpoint, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[e] = data
}

func (m *MockHardware) Writes() []WriteCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteCmd, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *MockHardware) PushNotification(n Notification) {
	m.events <- Event{Notification: &n}
}

func (m *MockHardware) ReadValue(ctx context.Context, cmd ReadCmd) ([]byte, error) {
	if !m.hasEndpoint(cmd.Endpoint) {
		return nil, errEndpointNotFound(m.name, cmd.Endpoint)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[cmd.Endpoint], nil
}

func (m *MockHardware) WriteValue(ctx context.Context, cmd WriteCmd) error {
	if !m.hasEndpoint(cmd.Endpoint) {
		return errEndpointNotFound(m.name, cmd.Endpoint)
	}
	m.mu.Lock()
	m.writes = append(m.writes, cmd)
	m.mu.Unlock()
	m.markWritten()
	return nil
}

func (m *MockHardware) Subscribe(ctx context.Context, cmd SubscribeCmd) error {
	if !m.hasEndpoint(cmd.Endpoint) {
		return errEndpointNotFound(m.name, cmd.Endpoint)
	}
	return nil
}

func (m *MockHardware) Unsubscribe(ctx context.Context, cmd UnsubscribeCmd) error { return nil }

func (m *MockHardware) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected {
		return nil
	}
	m.disconnected = true
	close(m.events)
	return nil
}
