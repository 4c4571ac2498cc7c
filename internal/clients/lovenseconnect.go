// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package clients talks to the one outboard service the server depends on:
// a locally running LovenseConnect bridge (spec §4.5's LovenseConnect
// comm-specifier kind). The bridge exposes toy discovery over plain HTTP
// rather than a native BLE stack, so this client polls it on an interval
// instead of opening a persistent connection, grounded on the teacher's
// own dependency-service availability poller in internal/clients/init.go
// (checkServiceAvailable's retry-with-sleep loop), adapted from a
// one-shot readiness check into a standing discovery poller.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/errtype"
)

// ToyEntry is one device the LovenseConnect bridge reports, matching the
// bridge's own /GetToys JSON response shape.
type ToyEntry struct {
	ID       string `json:"id"`
	ToyName  string `json:"toyName"`
	Nickname string `json:"nickName"`
	Battery  int    `json:"battery"`
	Version  string `json:"version"`
}

// LovenseConnectConfig configures the bridge poller (spec §6.2's
// per-comm-manager config block).
type LovenseConnectConfig struct {
	BaseURL      string
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

func (c LovenseConnectConfig) withDefaults() LovenseConnectConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 2 * time.Second
	}
	return c
}

// LovenseConnectClient polls a local LovenseConnect bridge for its toy list
// and reports each as a CommSpecifier the device manager can run discovery
// matching against, the same way a BLE comm manager reports advertisements.
type LovenseConnectClient struct {
	cfg    LovenseConnectConfig
	http   *http.Client
	log    common.LoggingClient
	seen   map[string]struct{}
}

func NewLovenseConnectClient(cfg LovenseConnectConfig, log common.LoggingClient) *LovenseConnectClient {
	cfg = cfg.withDefaults()
	return &LovenseConnectClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		log:  log,
		seen: make(map[string]struct{}),
	}
}

// Poll performs one fetch of the bridge's toy list.
func (c *LovenseConnectClient) Poll(ctx context.Context) ([]ToyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/GetToys", nil)
	if err != nil {
		return nil, errtype.Wrap(errtype.KindConnector, err, "building LovenseConnect request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errtype.Wrap(errtype.KindConnector, err, "polling LovenseConnect bridge")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errtype.Newf(errtype.KindConnector, "LovenseConnect bridge returned status %d", resp.StatusCode)
	}

	var byID map[string]ToyEntry
	if err := json.NewDecoder(resp.Body).Decode(&byID); err != nil {
		return nil, errtype.Wrap(errtype.KindConnector, err, "decoding LovenseConnect response")
	}
	out := make([]ToyEntry, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	return out, nil
}

// Run polls the bridge on cfg.PollInterval until ctx is cancelled, pushing a
// CommSpecifier for every newly seen toy id onto discovered. Already-seen
// ids are skipped, mirroring how a BLE scanner only reports a new
// advertisement once per connection attempt (the device manager's own
// connecting-set handles the rest of the dedup, per spec §8).
func (c *LovenseConnectClient) Run(ctx context.Context, discovered chan<- protocol.CommSpecifier) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			toys, err := c.Poll(ctx)
			if err != nil {
				c.log.Warn(fmt.Sprintf("LovenseConnect poll failed: %v", err))
				continue
			}
			for _, toy := range toys {
				if _, ok := c.seen[toy.ID]; ok {
					continue
				}
				c.seen[toy.ID] = struct{}{}
				discovered <- protocol.CommSpecifier{
					Kind:    protocol.SpecifierLovenseConnect,
					Name:    toy.ToyName,
					Address: toy.ID,
				}
			}
		}
	}
}
