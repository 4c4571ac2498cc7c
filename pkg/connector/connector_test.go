// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/message"
	"github.com/nexhw/buttplug-go/pkg/serializer"
)

// fakeTransport is an in-memory Transport double: WriteMessage publishes
// onto a channel a test goroutine plays the "server" role against, and
// ReadMessage drains a channel the test goroutine feeds.
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

func doHandshake(t *testing.T, transport *fakeTransport) (*RemoteConnector, message.ServerInfo) {
	t.Helper()
	c := NewRemoteConnector(transport, 0)

	go func() {
		<-transport.outbound // consumes the RequestServerInfo frame
		reply, err := serializer.EncodeFrame(message.ServerInfo{
			Id:                    1,
			ServerName:            "test-server",
			MessageVersion:        message.V4,
			MaxPingIntervalMillis: 1000,
		})
		require.NoError(t, err)
		transport.inbound <- reply
	}()

	info, err := c.Handshake(context.Background(), "demo-client", message.V4)
	require.NoError(t, err)
	return c, info
}

func TestHandshakeLocksVersion(t *testing.T) {
	transport := newFakeTransport()
	c, info := doHandshake(t, transport)

	assert.Equal(t, "test-server", info.ServerName)
	version, locked := c.lock.Version()
	assert.True(t, locked)
	assert.Equal(t, message.V4, version)
}

func TestRequestResolvesMatchingReply(t *testing.T) {
	transport := newFakeTransport()
	c, _ := doHandshake(t, transport)
	c.Start()

	id := c.nextMessageID()
	go func() {
		written := <-transport.outbound
		_ = written
		reply, err := serializer.EncodeFrame(message.Ok{Id: id})
		require.NoError(t, err)
		transport.inbound <- reply
	}()

	reply, err := c.Request(context.Background(), message.Ping{Id: id}, id)
	require.NoError(t, err)
	assert.Equal(t, message.Ok{Id: id}, reply)
}

func TestPushEventsForwardToEventsChannel(t *testing.T) {
	transport := newFakeTransport()
	c, _ := doHandshake(t, transport)
	c.Start()

	frame, err := serializer.EncodeFrame(message.ScanningFinished{})
	require.NoError(t, err)
	transport.inbound <- frame

	select {
	case evt := <-c.Events():
		assert.Equal(t, message.ScanningFinished{}, evt)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push event")
	}
}

func TestDisconnectFailsPendingRequests(t *testing.T) {
	transport := newFakeTransport()
	c, _ := doHandshake(t, transport)
	c.Start()

	id := c.nextMessageID()
	done := make(chan struct{})
	var reqErr error
	go func() {
		_, reqErr = c.Request(context.Background(), message.Ping{Id: id}, id)
		close(done)
	}()

	<-transport.outbound // the request has been written, now sitting pending
	require.NoError(t, c.Disconnect())

	select {
	case <-done:
		require.Error(t, reqErr)
		assert.Equal(t, errtype.KindConnector, errtype.KindOf(reqErr))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request to fail")
	}
}
