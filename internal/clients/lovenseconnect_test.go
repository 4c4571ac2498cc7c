// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/protocol"
)

func TestPollDecodesToyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]ToyEntry{
			"toy1": {ID: "toy1", ToyName: "Lush", Battery: 80},
		})
	}))
	defer srv.Close()

	c := NewLovenseConnectClient(LovenseConnectConfig{BaseURL: srv.URL}, common.NopLoggingClient{})
	toys, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, toys, 1)
	assert.Equal(t, "toy1", toys[0].ID)
	assert.Equal(t, "Lush", toys[0].ToyName)
}

func TestPollReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewLovenseConnectClient(LovenseConnectConfig{BaseURL: srv.URL}, common.NopLoggingClient{})
	_, err := c.Poll(context.Background())
	assert.Error(t, err)
}

func TestRunReportsEachToyOnlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]ToyEntry{
			"toy1": {ID: "toy1", ToyName: "Lush"},
		})
	}))
	defer srv.Close()

	c := NewLovenseConnectClient(LovenseConnectConfig{BaseURL: srv.URL, PollInterval: 10 * time.Millisecond}, common.NopLoggingClient{})
	discovered := make(chan protocol.CommSpecifier, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	c.Run(ctx, discovered)
	close(discovered)

	count := 0
	for range discovered {
		count++
	}
	assert.Equal(t, 1, count, "a toy already seen must not be reported again")
}
