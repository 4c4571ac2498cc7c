// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package common

// ServiceName and ServiceVersion are package-level identity globals; nothing
// in this module assigns or reads them (the ServerInfo reply takes its
// server name from handler.NewSession's serverName argument instead)
// (mirrors the teacher's common.ServiceName / common.ServiceVersion
// globals, without the EdgeX metadata-service client globals that had no
// analogue in this domain -- see DESIGN.md).
var (
	ServiceName    string
	ServiceVersion string
)
