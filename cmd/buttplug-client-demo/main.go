// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Command buttplug-client-demo is a worked example of pkg/client: dial a
// running server, request scanning, and vibrate the first Vibrate-capable
// feature of every device that shows up. Grounded on the teacher's own cmd/device-simple's
// thin main-as-wiring shape, adapted from a device service entry point into
// a protocol client entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/pkg/client"
	"github.com/nexhw/buttplug-go/pkg/connector"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

func main() {
	addr := flag.String("addr", "ws://127.0.0.1:12345/buttplug/websocket", "server websocket URL")
	name := flag.String("name", "buttplug-go-demo", "client name sent during handshake")
	flag.Parse()

	log := common.NewLoggingClient("buttplug-client-demo")

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dialing %s: %v\n", *addr, err)
		os.Exit(1)
	}

	c := client.NewClient(connector.NewWebSocketTransport(conn), log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	info, err := c.Connect(ctx, *name)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "handshake failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("connected to %q (spec version %d)\n", info.ServerName, info.MessageVersion)

	go func() {
		for evt := range c.Events() {
			switch {
			case evt.DeviceAdded != nil:
				d := evt.DeviceAdded
				fmt.Printf("device added: index=%d name=%q\n", d.Index, d.DisplayName)
				vibrateFirstFeature(c, d.Index, d.Features)
			case evt.DeviceRemoved != nil:
				fmt.Printf("device removed: index=%d\n", evt.DeviceRemoved.Index)
			case evt.ScanningFinished:
				fmt.Println("scanning finished")
			case evt.SensorReading != nil:
				fmt.Printf("sensor reading: device=%d feature=%d data=%v\n",
					evt.SensorReading.DeviceIndex, evt.SensorReading.FeatureIndex, evt.SensorReading.Data)
			case evt.ServerError != nil:
				fmt.Printf("server error: %s\n", evt.ServerError.ErrorMessage)
			case evt.ServerDisconnect:
				fmt.Println("server disconnected")
			}
		}
	}()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.StartScanning(reqCtx); err != nil {
		fmt.Fprintf(os.Stderr, "StartScanning failed: %v\n", err)
	}
	reqCancel()

	<-c.Done()
}

// vibrateFirstFeature sends a half-speed vibrate command to the first
// feature on the device that advertises a Vibrate output, if any.
func vibrateFirstFeature(c *client.Client, deviceIndex uint32, features []device.ClientDeviceFeature) {
	for _, f := range features {
		if _, ok := f.Output[feature.OutputVibrate]; !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Vibrate(ctx, deviceIndex, f.Index, 0.5); err != nil {
			fmt.Fprintf(os.Stderr, "Vibrate failed: %v\n", err)
		}
		return
	}
}
