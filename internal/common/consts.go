// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018-2019 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package common

import "time"

const (
	APIv1Prefix = "/api/v1"

	ConfigDirectory = "./res"
	ConfigFileName  = "configuration.toml"

	APIPingRoute      = APIv1Prefix + "/ping"
	APIWebsocketRoute = "/buttplug/websocket"

	// DefaultChannelSize is the bound applied to every internal channel
	// unless a caller overrides it (spec §5 "Backpressure").
	DefaultChannelSize = 256

	// DefaultMessageGap is a zero minimum inter-write spacing (spec §4.8
	// message_gap). It is not referenced elsewhere: cmd/buttplug-server takes
	// the gap for all hardware from the Server.DefaultMessageGap config field.
	DefaultMessageGap = 0 * time.Millisecond

	// CorrelationHeader is the correlation-id header name, mirroring the
	// teacher's clients.CorrelationHeader. Nothing in this module sets or
	// reads it.
	CorrelationHeader = "X-Correlation-Id"
)
