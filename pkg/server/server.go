// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the protocol's reference transport over HTTP (spec
// §6.1): a liveness route and a websocket upgrade route, each new connection
// handed off to its own internal/handler.Session. Grounded on the teacher's
// own internal/common route constants (APIPingRoute/APIWebsocketRoute) and
// on katagun-webpa-common's device.Manager.Connect, which registers state
// before upgrading the socket and then runs the connection's pumps in their
// own goroutines -- the same upgrade-then-hand-off shape this package uses,
// collapsed to one Session.Run call since this server has no separate
// read/write pump split.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/handler"
	"github.com/nexhw/buttplug-go/pkg/connector"
)

// Server is the HTTP surface in front of the device manager: a liveness
// probe and the websocket endpoint clients speak the protocol over.
type Server struct {
	router     *mux.Router
	upgrader   websocket.Upgrader
	newSession func() *handler.Session
	log        common.LoggingClient
}

// New builds a Server whose websocket route hands each accepted connection
// to a freshly constructed Session from newSession (one Session per
// connection, matching spec §4.2's per-connection handshake/version-lock
// state). The upgrader uses gorilla's default read/write buffer sizes.
func New(newSession func() *handler.Session, log common.LoggingClient) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		newSession: newSession,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router.HandleFunc(common.APIPingRoute, s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc(common.APIWebsocketRoute, s.handleWebsocket).Methods(http.MethodGet)
	return s
}

// Router exposes the underlying mux.Router, e.g. for http.ListenAndServe or
// tests driving requests through httptest.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// handleWebsocket upgrades the connection and runs its Session on the
// request's own goroutine, matching net/http's one-goroutine-per-connection
// handler model; Session.Run blocks until the connection ends.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: " + err.Error())
		return
	}
	transport := connector.NewWebSocketTransport(conn)
	session := s.newSession()
	if err := session.Run(r.Context(), transport); err != nil {
		s.log.Debug("session ended: " + err.Error())
	}
}
