// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package hardware

import (
	"context"
	"io"
	"time"

	"github.com/goburrow/serial"

	"github.com/nexhw/buttplug-go/pkg/errtype"
)

// SerialHardware backs a single-endpoint (Tx/Rx shared on one wire)
// protocol handler over a real serial port, grounded on the teacher's
// goburrow/serial dependency and examples/modbus/engine-modbus's RTU
// handler construction. It is the transport behind the worked
// modbus-framed-stroker protocol handler (spec §4.7).
type SerialHardware struct {
	baseHardware
	port io.ReadWriteCloser
}

// SerialConfig mirrors the fields the teacher's engine-modbus.Create reads
// out of its space-separated comm string (address, baud, data bits, stop
// bits, parity).
type SerialConfig struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

// OpenSerialHardware opens the named serial port and returns a Hardware
// exposing a single Command endpoint (the worked stroker handler issues
// the whole modbus frame, including CRC, itself rather than relying on a
// modbus.Client, so only a raw port is needed here).
func OpenSerialHardware(name string, cfg SerialConfig, messageGap time.Duration) (*SerialHardware, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errtype.Wrap(errtype.KindDeviceCommunication, err, "opening serial port "+cfg.Address)
	}
	return &SerialHardware{
		baseHardware: newBaseHardware(name, cfg.Address, []Endpoint{EndpointCommand}, messageGap),
		port:         port,
	}, nil
}

func (s *SerialHardware) ReadValue(ctx context.Context, cmd ReadCmd) ([]byte, error) {
	if !s.hasEndpoint(cmd.Endpoint) {
		return nil, errEndpointNotFound(s.name, cmd.Endpoint)
	}
	buf := make([]byte, 256)
	n, err := s.port.Read(buf)
	if err != nil {
		return nil, errtype.Wrap(errtype.KindDeviceCommunication, err, "serial read")
	}
	return buf[:n], nil
}

func (s *SerialHardware) WriteValue(ctx context.Context, cmd WriteCmd) error {
	if !s.hasEndpoint(cmd.Endpoint) {
		return errEndpointNotFound(s.name, cmd.Endpoint)
	}
	if _, err := s.port.Write(cmd.Data); err != nil {
		return errtype.Wrap(errtype.KindDeviceCommunication, err, "serial write")
	}
	s.markWritten()
	return nil
}

// Subscribe is unsupported: a raw serial line has no notification channel
// distinct from Read, so the worked stroker handler's battery subscribe
// fails with this error on serial hardware.
func (s *SerialHardware) Subscribe(ctx context.Context, cmd SubscribeCmd) error {
	return errtype.New(errtype.KindDeviceCommunication, "serial hardware does not support subscribe")
}

func (s *SerialHardware) Unsubscribe(ctx context.Context, cmd UnsubscribeCmd) error {
	return nil
}

func (s *SerialHardware) Disconnect() error {
	close(s.events)
	return s.port.Close()
}
