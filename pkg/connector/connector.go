// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package connector implements the client-side transport and message
// sorter spec §4.3 describes: a one-shot connect over an abstract
// Transport, a read pump that demultiplexes inbound frames by message id
// into waiting request futures or a push-event stream, and a write path
// that serializes and sends outbound messages. Grounded on the
// read-pump/write-pump/registry split in
// katagun-webpa-common's device.Manager, adapted from a many-device
// server-side hub into a single outbound connection owned by one client.
package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/message"
	"github.com/nexhw/buttplug-go/pkg/serializer"
)

// Transport is the abstract duplex byte-message channel a RemoteConnector
// runs its read/write pumps over. WebSocketTransport is the reference
// implementation; tests substitute an in-memory pipe.
type Transport interface {
	ReadMessage() (isBinary bool, data []byte, err error)
	WriteMessage(data []byte) error
	Close() error
}

type pendingResult struct {
	msg message.Message
	err error
}

// sorter routes inbound replies to the request future waiting on their
// message id, and forwards everything else (id 0, server-initiated push
// events) to a single events channel. It is owned exclusively by the read
// pump goroutine except for register/cancel, which a requester calls
// before the request is written.
type sorter struct {
	mu      sync.Mutex
	waiting map[message.ID]chan pendingResult
	events  chan message.Message
	closed  bool
}

func newSorter(eventBuffer int) *sorter {
	return &sorter{
		waiting: make(map[message.ID]chan pendingResult),
		events:  make(chan message.Message, eventBuffer),
	}
}

func (s *sorter) register(id message.ID) chan pendingResult {
	ch := make(chan pendingResult, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		ch <- pendingResult{err: errtype.New(errtype.KindConnector, "ConnectorNotConnected")}
		return ch
	}
	s.waiting[id] = ch
	return ch
}

func (s *sorter) cancel(id message.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiting, id)
}

// dispatch routes one decoded inbound message, either resolving a pending
// request or forwarding a push event.
func (s *sorter) dispatch(msg message.Message) {
	id := msg.MessageID()
	if id.IsNotSystemID() {
		s.mu.Lock()
		ch, ok := s.waiting[id]
		if ok {
			delete(s.waiting, id)
		}
		s.mu.Unlock()
		if ok {
			ch <- pendingResult{msg: msg}
			return
		}
	}
	select {
	case s.events <- msg:
	default:
		// Slow event consumer: drop rather than block the read pump, matching
		// the single-reader-per-connection assumption in spec §5.
	}
}

// failAll resolves every outstanding request future with err and marks the
// sorter closed so late registrations fail immediately too. Called once,
// from the pump that detects the transport has gone away.
func (s *sorter) failAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.waiting {
		ch <- pendingResult{err: err}
		delete(s.waiting, id)
	}
	close(s.events)
}

// RemoteConnector is the client's connection to a Buttplug server: it owns
// the transport, the version lock negotiated during handshake, and the
// sorter that demultiplexes inbound frames (spec §4.3).
type RemoteConnector struct {
	transport Transport
	sorter    *sorter
	lock      serializer.VersionLock
	nextID    uint32

	closeOnce sync.Once
	done      chan struct{}
}

// NewRemoteConnector wraps transport, ready to run once Start is called.
// eventBuffer bounds the push-event channel (spec §5 default 256).
func NewRemoteConnector(transport Transport, eventBuffer int) *RemoteConnector {
	if eventBuffer <= 0 {
		eventBuffer = 256
	}
	return &RemoteConnector{
		transport: transport,
		sorter:    newSorter(eventBuffer),
		done:      make(chan struct{}),
	}
}

// Events returns the channel of server-initiated push messages (message id
// 0): DeviceAdded, DeviceRemoved, ScanningFinished, SensorReading,
// RawReading and unsolicited Error. It closes once the connector's read
// pump has exited.
func (c *RemoteConnector) Events() <-chan message.Message {
	return c.sorter.events
}

// Start launches the read pump. It must be called exactly once, before any
// Request call, and normally right after a successful Handshake.
func (c *RemoteConnector) Start() {
	go c.readPump()
}

func (c *RemoteConnector) readPump() {
	var readErr error
	defer func() {
		if readErr == nil {
			readErr = errtype.New(errtype.KindConnector, "ConnectorNotConnected")
		}
		c.sorter.failAll(readErr)
		c.closeOnce.Do(func() { close(c.done) })
	}()

	for {
		isBinary, data, err := c.transport.ReadMessage()
		if err != nil {
			readErr = errtype.Wrap(errtype.KindConnector, err, "reading frame")
			return
		}
		if isBinary {
			readErr = errtype.New(errtype.KindMessage, "BinaryDeserializationError")
			return
		}

		version, locked := c.lock.Version()
		if !locked {
			// Only the handshake reply is expected before the version is
			// locked; Handshake itself decodes that frame directly, so any
			// frame reaching the pump this early is a protocol violation.
			readErr = errtype.New(errtype.KindMessage, "MessageSpecVersionNotReceived")
			return
		}

		msgs, err := serializer.DecodeFrame(version, data)
		if err != nil {
			readErr = err
			return
		}
		for _, msg := range msgs {
			c.sorter.dispatch(msg)
		}
	}
}

// nextMessageID issues the next non-system client request id (spec §3.3
// IDs are per-connection, client-assigned, monotonic).
func (c *RemoteConnector) nextMessageID() message.ID {
	return message.ID(atomic.AddUint32(&c.nextID, 1))
}

// Handshake performs the one-shot RequestServerInfo/ServerInfo exchange
// spec §4.2 describes, locking this connector's wire version to whatever
// the server declares back. It must be the first frame written and must
// complete before Start's read pump is given any further input.
func (c *RemoteConnector) Handshake(ctx context.Context, clientName string, requestedVersion message.Version) (message.ServerInfo, error) {
	req := message.RequestServerInfo{
		Id:                   c.nextMessageID(),
		ClientName:           clientName,
		ProtocolVersionMajor: int(requestedVersion),
	}
	frame, err := serializer.EncodeFrame(req)
	if err != nil {
		return message.ServerInfo{}, err
	}
	if err := c.transport.WriteMessage(frame); err != nil {
		return message.ServerInfo{}, errtype.Wrap(errtype.KindConnector, err, "writing handshake")
	}

	isBinary, data, err := c.transport.ReadMessage()
	if err != nil {
		return message.ServerInfo{}, errtype.Wrap(errtype.KindConnector, err, "reading handshake reply")
	}
	if isBinary {
		return message.ServerInfo{}, errtype.New(errtype.KindMessage, "BinaryDeserializationError")
	}

	msgs, err := serializer.DecodeFrame(requestedVersion, data)
	if err != nil || len(msgs) != 1 {
		return message.ServerInfo{}, errtype.New(errtype.KindInit, "malformed handshake reply")
	}
	serverInfo, ok := msgs[0].(message.ServerInfo)
	if !ok {
		return message.ServerInfo{}, errtype.New(errtype.KindInit, "expected ServerInfo")
	}
	if !c.lock.Lock(serverInfo.MessageVersion) {
		return message.ServerInfo{}, errtype.New(errtype.KindInit, "HandshakeAlreadyHappened")
	}
	return serverInfo, nil
}

// Request sends msg, already expressed in this connector's locked wire
// version, and blocks for the server's matching reply or ctx's
// cancellation. Callers are responsible for downgrading to the locked
// version via pkg/message.Downgrade before calling Request.
func (c *RemoteConnector) Request(ctx context.Context, msg interface{}, id message.ID) (message.Message, error) {
	if _, locked := c.lock.Version(); !locked {
		return nil, errtype.New(errtype.KindInit, "handshake has not completed")
	}

	frame, err := serializer.EncodeFrame(msg)
	if err != nil {
		return nil, err
	}

	replyCh := c.sorter.register(id)
	if err := c.transport.WriteMessage(frame); err != nil {
		c.sorter.cancel(id)
		return nil, errtype.Wrap(errtype.KindConnector, err, "writing request")
	}

	select {
	case result := <-replyCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.msg, nil
	case <-ctx.Done():
		c.sorter.cancel(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, errtype.New(errtype.KindConnector, "ConnectorNotConnected")
	}
}

// Disconnect closes the underlying transport, which causes the read pump
// to exit and fail every outstanding request with a KindConnector error.
func (c *RemoteConnector) Disconnect() error {
	return c.transport.Close()
}

// Done reports when the read pump has exited, either due to Disconnect or
// a transport-level error.
func (c *RemoteConnector) Done() <-chan struct{} {
	return c.done
}
