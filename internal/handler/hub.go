// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package handler implements the server side of the message pipeline: the
// per-connection Session that runs the handshake and request dispatch loop
// (spec §4.2, §6.1), and Hub, which fans the single device manager event
// stream out to every connected Session the way spec §4.4's client event
// loop fans events out to its own subscribers -- lossy on a slow consumer
// rather than blocking the device manager loop (spec §5 "Backpressure").
package handler

import (
	"sync"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/devicemanager"
)

// Hub broadcasts devicemanager.Event to every subscribed Session.
type Hub struct {
	dm  *devicemanager.Manager
	log common.LoggingClient

	mu   sync.Mutex
	subs map[chan devicemanager.Event]struct{}
}

// NewHub starts the fan-out goroutine immediately; it runs until dm's own
// Events channel closes (which happens once dm.Run's shutdown completes).
func NewHub(dm *devicemanager.Manager, log common.LoggingClient) *Hub {
	h := &Hub{dm: dm, log: log, subs: make(map[chan devicemanager.Event]struct{})}
	go h.run()
	return h
}

func (h *Hub) run() {
	for evt := range h.dm.Events() {
		h.broadcast(evt)
	}
	h.mu.Lock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan devicemanager.Event]struct{})
	h.mu.Unlock()
}

func (h *Hub) broadcast(evt devicemanager.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Warn("dropping device-manager event for a slow session subscriber")
		}
	}
}

// Subscribe registers a fresh per-session event channel. The caller must
// Unsubscribe when its session ends, or read until the channel closes
// (which happens if the hub itself shuts down first).
func (h *Hub) Subscribe() chan devicemanager.Event {
	ch := make(chan devicemanager.Event, common.DefaultChannelSize)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes ch from the broadcast set. Safe to call more than
// once for the same channel.
func (h *Hub) Unsubscribe(ch chan devicemanager.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
	}
}
