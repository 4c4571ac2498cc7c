// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package genericvibe implements the common handshake-free multi-vibrator
// protocol handler: one byte per vibrate channel written to a single
// TxVibrate endpoint, and a direct (non-subscribed) battery read off a
// Battery endpoint. Grounded on
// original_source/buttplug/src/device/protocol/vibratissimo.rs and
// .../generic_btle.rs, which both write a single control-point value per
// motor with no prior handshake.
package genericvibe

import (
	"context"

	"github.com/google/uuid"

	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

// Handler is the genericvibe protocol handler. It has no handshake: Identify
// trusts the comm manager's specifier match and derives the device
// identifier directly from the advertised name and address.
type Handler struct {
	protocol.BaseHandler
	vibrateEndpointByFeature map[uint32]hardware.Endpoint
}

func New() protocol.Handler {
	return &Handler{vibrateEndpointByFeature: make(map[uint32]hardware.Endpoint)}
}

func (h *Handler) Identify(ctx context.Context, hw hardware.Hardware, specifier protocol.CommSpecifier) (device.Identifier, error) {
	return device.Identifier{
		Address:              hw.Address(),
		ProtocolName:          "genericvibe",
		AttributesIdentifier: specifier.Name,
	}, nil
}

func (h *Handler) Initialize(ctx context.Context, hw hardware.Hardware, def *device.Definition) error {
	for i, f := range def.Features {
		if _, ok := f.AcceptsOutput(feature.OutputVibrate); ok {
			h.vibrateEndpointByFeature[uint32(i)] = hardware.EndpointTxVibrate
		}
	}
	return nil
}

// HandleOutput writes a single byte, the native step value, to the device's
// TxVibrate endpoint for a Vibrate command; any other output kind is
// unsupported by this handler.
func (h *Handler) HandleOutput(ctx context.Context, hw hardware.Hardware, featureIndex uint32, featureID uuid.UUID, kind feature.OutputType, value int32) ([]hardware.WriteCmd, error) {
	if kind != feature.OutputVibrate {
		return nil, errtype.Newf(errtype.KindDeviceProtocol, "genericvibe: unsupported output kind %s", kind)
	}
	endpoint, ok := h.vibrateEndpointByFeature[featureIndex]
	if !ok {
		endpoint = hardware.EndpointTxVibrate
	}
	cmd := hardware.WriteCmd{Endpoint: endpoint, Data: []byte{byte(value)}, WriteWithResponse: false}
	if err := hw.WriteValue(ctx, cmd); err != nil {
		return nil, errtype.Wrap(errtype.KindDeviceCommunication, err, "genericvibe write")
	}
	return []hardware.WriteCmd{cmd}, nil
}

// HandleInputRead performs a direct, synchronous read of the Battery
// endpoint (the "direct read" pattern from spec §4.7's open question).
func (h *Handler) HandleInputRead(ctx context.Context, hw hardware.Hardware, featureIndex uint32, kind feature.InputType) ([]int32, error) {
	if kind != feature.InputBattery {
		return nil, errtype.Newf(errtype.KindDeviceProtocol, "genericvibe: unsupported input kind %s", kind)
	}
	data, err := hw.ReadValue(ctx, hardware.ReadCmd{Endpoint: hardware.EndpointRxBLEBattery})
	if err != nil {
		return nil, errtype.Wrap(errtype.KindDeviceCommunication, err, "genericvibe battery read")
	}
	if len(data) == 0 {
		return nil, errtype.New(errtype.KindDeviceProtocol, "genericvibe: empty battery reading")
	}
	return []int32{int32(data[0])}, nil
}

// KeepaliveStrategy re-sends the last vibrate packet if the bus has been
// quiet for 500ms, matching the common BLE toy timeout pattern (spec §4.6).
func (h *Handler) KeepaliveStrategy() protocol.KeepaliveStrategy {
	return protocol.KeepaliveStrategy{Kind: protocol.KeepaliveRepeatLastPacket, Interval: defaultKeepaliveInterval}
}

const defaultKeepaliveInterval = 500_000_000 // 500ms, in time.Duration nanoseconds
