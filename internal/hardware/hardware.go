// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package hardware defines the Hardware trait surface (spec §4.8): the
// abstract, transport-agnostic endpoint read/write/subscribe contract that
// protocol handlers are written against. Concrete comm managers (BLE,
// serial, HID, USB, websocket-server, Lovense dongle) are out of scope per
// spec §1 except for the one worked serial backend below, needed to
// exercise the worked protocol handler (spec §4.7).
package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/nexhw/buttplug-go/pkg/errtype"
)

// Endpoint names a symbolic read/write/subscribe target a comm manager has
// resolved onto a real platform handle (a BLE characteristic, a serial
// line, a HID report, ...). The names below are the common ones a protocol
// handler may ask for; a comm manager is free to expose others.
type Endpoint string

const (
	EndpointTx             Endpoint = "Tx"
	EndpointRx             Endpoint = "Rx"
	EndpointCommand        Endpoint = "Command"
	EndpointRxBLEBattery   Endpoint = "RxBLEBattery"
	EndpointTxMode         Endpoint = "TxMode"
	EndpointTxVibrate      Endpoint = "TxVibrate"
	EndpointTxVendorControl Endpoint = "TxVendorControl"
)

// ReadCmd requests a single synchronous read from an endpoint.
type ReadCmd struct {
	Endpoint Endpoint
}

// WriteCmd requests a write to an endpoint, optionally waiting for a
// transport-level acknowledgement (WriteWithResponse).
type WriteCmd struct {
	Endpoint          Endpoint
	Data              []byte
	WriteWithResponse bool
}

// SubscribeCmd / UnsubscribeCmd request a push-notification subscription on
// an endpoint (spec §4.8).
type SubscribeCmd struct{ Endpoint Endpoint }
type UnsubscribeCmd struct{ Endpoint Endpoint }

// Event is something the hardware pushed asynchronously: a subscribed
// notification, or disconnection.
type Event struct {
	Notification *Notification
	Disconnected bool
}

type Notification struct {
	Endpoint Endpoint
	Data     []byte
}

// Hardware is the abstract per-device transport every protocol handler is
// written against (spec §4.8).
type Hardware interface {
	Name() string
	Address() string
	Endpoints() []Endpoint

	// EventStream returns a channel of asynchronous notifications and the
	// terminal disconnect event. Closed once Disconnect has completed.
	EventStream() <-chan Event

	ReadValue(ctx context.Context, cmd ReadCmd) ([]byte, error)
	WriteValue(ctx context.Context, cmd WriteCmd) error
	Subscribe(ctx context.Context, cmd SubscribeCmd) error
	Unsubscribe(ctx context.Context, cmd UnsubscribeCmd) error
	Disconnect() error

	// TimeSinceLastWrite reports how long it has been since WriteValue last
	// completed successfully; used by the keepalive strategy (spec §4.6).
	TimeSinceLastWrite() time.Duration

	// MessageGap is the minimum spacing the device requires between writes,
	// or 0 if the device imposes none (spec §4.8).
	MessageGap() time.Duration
}

// baseHardware implements the bookkeeping shared by every concrete
// Hardware: last-write timestamp tracking under a single RWMutex (spec §5
// "Hardware last-write timestamp: single read-write lock, held briefly
// around write_value when keepalive is active") and the event channel.
type baseHardware struct {
	name       string
	address    string
	endpoints  []Endpoint
	messageGap time.Duration

	mu            sync.RWMutex
	lastWriteTime time.Time

	events chan Event
}

func newBaseHardware(name, address string, endpoints []Endpoint, messageGap time.Duration) baseHardware {
	return baseHardware{
		name:       name,
		address:    address,
		endpoints:  endpoints,
		messageGap: messageGap,
		events:     make(chan Event, 16),
	}
}

func (b *baseHardware) Name() string           { return b.name }
func (b *baseHardware) Address() string        { return b.address }
func (b *baseHardware) Endpoints() []Endpoint  { return b.endpoints }
func (b *baseHardware) MessageGap() time.Duration { return b.messageGap }
func (b *baseHardware) EventStream() <-chan Event { return b.events }

func (b *baseHardware) markWritten() {
	b.mu.Lock()
	b.lastWriteTime = time.Now()
	b.mu.Unlock()
}

func (b *baseHardware) TimeSinceLastWrite() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastWriteTime.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(b.lastWriteTime)
}

func (b *baseHardware) hasEndpoint(e Endpoint) bool {
	for _, ep := range b.endpoints {
		if ep == e {
			return true
		}
	}
	return false
}

func errEndpointNotFound(name string, e Endpoint) error {
	return errtype.Newf(errtype.KindDeviceCommunication, "hardware %s has no endpoint %s", name, e)
}
