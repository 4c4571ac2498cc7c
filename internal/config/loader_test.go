// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	config, err := loadConfigFromFile("./test")
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Service.Host)
	assert.Equal(t, 12345, config.Service.Port)
	assert.Equal(t, 3, config.Service.ConnectRetries)
	assert.Equal(t, "info", config.Logging.LogLevel)
	assert.Equal(t, 256, config.Server.ChannelSize)
	assert.Equal(t, 5*time.Second, config.Server.PingTimeout.Duration)
	assert.Equal(t, uint32(4), config.Server.MaxSpecVersion)
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := loadConfigFromFile("./nonexistent")
	assert.Error(t, err)
}

func TestLoadServerConfigFromDirectory(t *testing.T) {
	_, err := LoadServerConfig("./test")
	require.NoError(t, err)
}
