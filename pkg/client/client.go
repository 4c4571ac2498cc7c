// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package client is the public client-side API (spec §4.4): it wraps
// pkg/connector.RemoteConnector with the device map and typed event stream a
// client program actually wants, translating the connector's raw push
// messages into ClientEvent values and keeping a map of currently known
// devices up to date. Grounded on the teacher's device-sdk-go driver-facing
// SDK surface (a thin typed wrapper over a lower-level transport/protocol
// layer) and on katagun-webpa-common's dispatch-to-listeners shape for
// fanning connector events out, collapsed here to a single buffered channel
// since one client owns exactly one server connection.
package client

import (
	"context"
	"sync"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/pkg/connector"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
	"github.com/nexhw/buttplug-go/pkg/message"
)

// ClientEvent is one notification the client's dispatch loop emits; exactly
// one field is set, mirroring internal/devicemanager.Event's shape on the
// server side.
type ClientEvent struct {
	DeviceAdded      *device.ClientDevice
	DeviceRemoved    *device.ClientDevice
	ScanningFinished bool
	SensorReading    *message.SensorReading
	ServerError      *message.Error
	ServerDisconnect bool
}

// Client is a single connection to a Buttplug server: the device map, the
// negotiated version, and the event stream user code actually wants (spec
// §4.4). Connect requests spec version 4, and every outbound request is sent
// in its v4 form; requests are not downgraded if the server locks the
// connection to an older version.
type Client struct {
	conn *connector.RemoteConnector
	log  common.LoggingClient

	mu      sync.RWMutex
	devices map[uint32]*device.ClientDevice
	idSeq   uint32

	events chan ClientEvent
	done   chan struct{}
}

// NewClient wraps transport, ready to Connect.
func NewClient(transport connector.Transport, log common.LoggingClient) *Client {
	return &Client{
		conn:    connector.NewRemoteConnector(transport, common.DefaultChannelSize),
		log:     log,
		devices: make(map[uint32]*device.ClientDevice),
		events:  make(chan ClientEvent, common.DefaultChannelSize),
		done:    make(chan struct{}),
	}
}

// Events returns the channel of translated server push notifications. It
// closes once the underlying connection's read pump exits.
func (c *Client) Events() <-chan ClientEvent { return c.events }

// Connect performs the handshake, starts the connector's read pump, and
// launches this client's own dispatch loop translating connector.Events()
// into ClientEvent (spec §4.2 steps 1-2, §4.4).
func (c *Client) Connect(ctx context.Context, clientName string) (message.ServerInfo, error) {
	info, err := c.conn.Handshake(ctx, clientName, message.V4)
	if err != nil {
		return message.ServerInfo{}, err
	}
	c.conn.Start()
	go c.dispatchLoop()
	return info, nil
}

func (c *Client) dispatchLoop() {
	defer close(c.done)
	defer close(c.events)
	for msg := range c.conn.Events() {
		c.handlePush(msg)
	}
	c.emit(ClientEvent{ServerDisconnect: true})
}

func (c *Client) handlePush(msg message.Message) {
	switch m := msg.(type) {
	case message.DeviceAdded:
		c.addDevice(m)
	case *message.DeviceAdded:
		c.addDevice(*m)
	case message.DeviceRemoved:
		c.removeDevice(m.DeviceIndex)
	case message.ScanningFinished:
		c.emit(ClientEvent{ScanningFinished: true})
	case message.SensorReading:
		reading := m
		c.emit(ClientEvent{SensorReading: &reading})
	case message.Error:
		err := m
		c.emit(ClientEvent{ServerError: &err})
	default:
		c.log.Debug("client ignoring unrecognized push message")
	}
}

func (c *Client) addDevice(m message.DeviceAdded) {
	cd := &device.ClientDevice{Index: m.DeviceIndex, Name: m.DeviceName, DisplayName: m.DisplayName}
	for _, f := range m.Features {
		cd.Features = append(cd.Features, device.ClientDeviceFeature{
			Index:       f.Index,
			Description: f.Description,
			FeatureType: f.FeatureType,
			Output:      f.Output,
			Input:       f.Input,
		})
	}
	c.mu.Lock()
	c.devices[m.DeviceIndex] = cd
	c.mu.Unlock()
	c.emit(ClientEvent{DeviceAdded: cd})
}

func (c *Client) removeDevice(index uint32) {
	c.mu.Lock()
	cd, ok := c.devices[index]
	if ok {
		delete(c.devices, index)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	cd.MarkDisconnected()
	c.emit(ClientEvent{DeviceRemoved: cd})
}

func (c *Client) emit(evt ClientEvent) {
	select {
	case c.events <- evt:
	default:
		c.log.Warn("dropping client event for a slow consumer")
	}
}

// Devices returns a snapshot of every currently known device.
func (c *Client) Devices() []*device.ClientDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*device.ClientDevice, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

// DeviceByIndex looks up a currently known device by its wire index.
func (c *Client) DeviceByIndex(index uint32) (*device.ClientDevice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[index]
	return d, ok
}

func (c *Client) requestOk(ctx context.Context, msg interface{}, id message.ID) error {
	reply, err := c.conn.Request(ctx, msg, id)
	if err != nil {
		return err
	}
	if e, ok := reply.(message.Error); ok {
		return errtype.Newf(errtype.KindMessage, "server error: %s", e.ErrorMessage)
	}
	if _, ok := reply.(message.Ok); !ok {
		return errtype.Newf(errtype.KindMessage, "unexpected reply type %T", reply)
	}
	return nil
}

func (c *Client) nextID() message.ID {
	// Every Request call needs its caller to supply the id up front so it
	// can register the reply future before writing, so this client keeps its
	// own counter rather than reaching into the connector's unexported one.
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idSeq++
	return message.ID(c.idSeq)
}

// StartScanning requests the server begin device discovery.
func (c *Client) StartScanning(ctx context.Context) error {
	id := c.nextID()
	return c.requestOk(ctx, message.StartScanning{Id: id}, id)
}

// StopScanning requests the server stop device discovery.
func (c *Client) StopScanning(ctx context.Context) error {
	id := c.nextID()
	return c.requestOk(ctx, message.StopScanning{Id: id}, id)
}

// RequestDeviceList asks the server for every currently connected device and
// refreshes this client's local device map from the reply (spec §4.2
// RequestDeviceList/DeviceList).
func (c *Client) RequestDeviceList(ctx context.Context) error {
	id := c.nextID()
	reply, err := c.conn.Request(ctx, message.RequestDeviceList{Id: id}, id)
	if err != nil {
		return err
	}
	list, ok := reply.(message.DeviceList)
	if !ok {
		if lp, ok := reply.(*message.DeviceList); ok {
			list = *lp
		} else {
			return errtype.Newf(errtype.KindMessage, "unexpected reply type %T", reply)
		}
	}
	for _, entry := range list.Devices {
		c.addDevice(message.DeviceAdded{
			DeviceIndex: entry.DeviceIndex,
			DeviceName:  entry.DeviceName,
			DisplayName: entry.DisplayName,
			Features:    entry.Features,
		})
	}
	return nil
}

// StopDevice halts every actuator on one device.
func (c *Client) StopDevice(ctx context.Context, deviceIndex uint32) error {
	id := c.nextID()
	return c.requestOk(ctx, message.StopDeviceCmd{Id: id, DeviceIndex: deviceIndex}, id)
}

// StopAllDevices halts every actuator on every connected device.
func (c *Client) StopAllDevices(ctx context.Context) error {
	id := c.nextID()
	return c.requestOk(ctx, message.StopAllDevices{Id: id}, id)
}

// Vibrate sends a single-feature vibrate command scaled from a 0.0-1.0
// speed into the feature's native step range, the client-side half of spec
// §4.1's vibrate pipeline (mirrors the resolve-then-scale done server-side
// by pkg/message/convert.go's resolveOutput/ScaleFromUnitInterval, since the
// wire OutputCmd always carries native step units, never a raw float).
func (c *Client) Vibrate(ctx context.Context, deviceIndex, featureIndex uint32, speed float64) error {
	dev, ok := c.DeviceByIndex(deviceIndex)
	if !ok {
		return errtype.NewDeviceNotAvailable(deviceIndex)
	}
	f, ok := dev.FeatureByIndex(featureIndex)
	if !ok {
		return errtype.NewDeviceFeatureMismatch(deviceIndex, featureIndex, "feature index out of range")
	}
	spec, ok := f.Output[feature.OutputVibrate]
	if !ok {
		return errtype.NewDeviceFeatureMismatch(deviceIndex, featureIndex, "feature does not accept output kind Vibrate")
	}
	scaled := uint32(spec.ScaleFromUnitInterval(speed))

	id := c.nextID()
	cmd := message.OutputCmd{
		Id:            id,
		DeviceIndex:   deviceIndex,
		FeatureIndex:  featureIndex,
		OutputCommand: message.OutputCommand{Vibrate: &scaled},
	}
	return c.requestOk(ctx, cmd, id)
}

// ReadSensor issues a direct sensor read and returns the raw reading data.
func (c *Client) ReadSensor(ctx context.Context, deviceIndex, featureIndex uint32, kind feature.InputType) ([]int32, error) {
	id := c.nextID()
	cmd := message.InputCmd{
		Id:           id,
		DeviceIndex:  deviceIndex,
		FeatureIndex: featureIndex,
		InputCommand: message.InputCommand{Read: &struct{}{}},
	}
	reply, err := c.conn.Request(ctx, cmd, id)
	if err != nil {
		return nil, err
	}
	reading, ok := reply.(message.SensorReading)
	if !ok {
		return nil, errtype.Newf(errtype.KindMessage, "unexpected reply type %T", reply)
	}
	if reading.SensorType != kind {
		return nil, errtype.NewDeviceFeatureMismatch(deviceIndex, featureIndex, "sensor type mismatch")
	}
	return reading.Data, nil
}

// Disconnect tears down the underlying transport.
func (c *Client) Disconnect() error {
	return c.conn.Disconnect()
}

// Done reports when this client's dispatch loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }
