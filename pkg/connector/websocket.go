// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package connector

import "github.com/gorilla/websocket"

// WebSocketTransport adapts a *websocket.Conn to the Transport interface,
// the reference wire transport spec §6.1 names (ws:// or wss://).
type WebSocketTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an already-established websocket connection,
// whether dialed by a client or upgraded by the server.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) ReadMessage() (isBinary bool, data []byte, err error) {
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		return false, nil, err
	}
	return messageType == websocket.BinaryMessage, data, nil
}

func (t *WebSocketTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}
