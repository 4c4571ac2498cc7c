// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/cache"
	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/config"
	"github.com/nexhw/buttplug-go/internal/devicemanager"
	"github.com/nexhw/buttplug-go/internal/handler"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/pkg/message"
	"github.com/nexhw/buttplug-go/pkg/serializer"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	cache.InitCache()

	log := common.NopLoggingClient{}
	timers := scheduler.NewManager(log)
	cfg := config.NewDeviceConfigManager()
	dm := devicemanager.New(cfg, timers, log, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go dm.Run(ctx)

	hub := handler.NewHub(dm, log)
	s := New(func() *handler.Session {
		return handler.NewSession(dm, hub, timers, log, "buttplug-go-test-server", message.V4, 0)
	}, log)
	return s, func() {
		cancel()
		timers.StopAll()
	}
}

func TestPingRoute(t *testing.T) {
	s, stop := newTestServer(t)
	defer stop()

	req := httptest.NewRequest(http.MethodGet, common.APIPingRoute, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func TestWebsocketHandshake(t *testing.T) {
	s, stop := newTestServer(t)
	defer stop()

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + common.APIWebsocketRoute
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	reqInfo, err := serializer.EncodeFrame(message.RequestServerInfo{Id: 1, ClientName: "test-client", ProtocolVersionMajor: 4})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, reqInfo))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ServerInfo")
}
