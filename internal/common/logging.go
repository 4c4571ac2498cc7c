// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
)

// LoggingClient is the logging contract used across every package in this
// module, shaped like the teacher's logger.LoggingClient
// (Debug/Info/Warn/Error over a formatted message) but backed by
// go-kit/log, grounded on katagun-webpa-common's device.Manager, which
// builds its own logging on top of github.com/go-kit/kit/log.
type LoggingClient interface {
	Debug(message string)
	Info(message string)
	Warn(message string)
	Error(message string)
}

type kitLoggingClient struct {
	logger kitlog.Logger
}

// NewLoggingClient builds a LoggingClient writing structured logfmt lines
// to stdout, tagged with the service name and a timestamp, the same shape
// the teacher's logger.NewClient(serviceName, ...) produces.
func NewLoggingClient(serviceName string) LoggingClient {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	base = kitlog.With(base, "ts", kitlog.TimestampFormat(time.Now, time.RFC3339), "service", serviceName)
	return &kitLoggingClient{logger: base}
}

func (c *kitLoggingClient) Debug(message string) { c.log("debug", message) }
func (c *kitLoggingClient) Info(message string)  { c.log("info", message) }
func (c *kitLoggingClient) Warn(message string)  { c.log("warn", message) }
func (c *kitLoggingClient) Error(message string) { c.log("error", message) }

func (c *kitLoggingClient) log(level, message string) {
	_ = c.logger.Log("level", level, "msg", message)
}

// NopLoggingClient discards every call; used by tests that don't care
// about log output.
type NopLoggingClient struct{}

func (NopLoggingClient) Debug(string) {}
func (NopLoggingClient) Info(string)  {}
func (NopLoggingClient) Warn(string)  {}
func (NopLoggingClient) Error(string) {}
