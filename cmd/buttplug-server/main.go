// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Command buttplug-server bootstraps the reference server: it loads the
// TOML service configuration and the JSON/YAML device catalog, wires the
// worked protocol handlers and hardware connectors, and serves the
// websocket endpoint over HTTP. Grounded on the teacher's own
// cmd/device-simple bootstrapping shape (load config, build the manager,
// register protocol drivers, start serving) collapsed into one main since
// this module has no separate device-service-sdk layer to hand off to.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexhw/buttplug-go/internal/cache"
	"github.com/nexhw/buttplug-go/internal/clients"
	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/config"
	"github.com/nexhw/buttplug-go/internal/devicemanager"
	"github.com/nexhw/buttplug-go/internal/handler"
	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/internal/protocol/fleshlightlaunch"
	"github.com/nexhw/buttplug-go/internal/protocol/genericvibe"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/pkg/message"
	"github.com/nexhw/buttplug-go/pkg/server"
)

func main() {
	confDir := flag.String("confdir", "", "configuration directory (defaults to ./res)")
	deviceConfig := flag.String("deviceconfig", "", "base device configuration file (JSON or YAML)")
	userConfig := flag.String("userconfig", "", "optional user override configuration file")
	flag.Parse()

	log := common.NewLoggingClient("buttplug-server")

	cfg, err := config.LoadServerConfig(*confDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading server configuration: %v\n", err)
		os.Exit(1)
	}

	devCfg := config.NewDeviceConfigManager()
	if *deviceConfig != "" {
		if err := devCfg.LoadBaseConfig(*deviceConfig); err != nil {
			fmt.Fprintf(os.Stderr, "loading device configuration: %v\n", err)
			os.Exit(1)
		}
	}
	if *userConfig != "" {
		if err := devCfg.LoadUserConfig(*userConfig); err != nil {
			fmt.Fprintf(os.Stderr, "loading user configuration: %v\n", err)
			os.Exit(1)
		}
	}
	devCfg.RegisterHandler("GenericVibe", func() protocol.Handler { return genericvibe.New() })
	devCfg.RegisterHandler("FleshlightLaunch", func() protocol.Handler { return fleshlightlaunch.New() })

	cache.InitCache()
	timers := scheduler.NewManager(log)

	messageGap := cfg.Server.DefaultMessageGap.Duration
	dm := devicemanager.New(devCfg, timers, log, messageGap, cfg.Server.ChannelSize)
	dm.RegisterConnector(protocol.SpecifierSerial, devicemanager.SerialConnector{
		Config: hardware.SerialConfig{
			BaudRate: 115200,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  time.Second,
		},
	})

	lovense := clients.NewLovenseConnectClient(clients.LovenseConnectConfig{BaseURL: "http://127.0.0.1:30010"}, log)
	dm.RegisterSource(lovense.Run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dm.Run(ctx)

	hub := handler.NewHub(dm, log)
	maxVersion := message.Version(cfg.Server.MaxSpecVersion)
	if maxVersion == 0 {
		maxVersion = message.V4
	}
	pingMillis := uint32(cfg.Server.PingTimeout.Duration / time.Millisecond)

	srv := server.New(func() *handler.Session {
		return handler.NewSession(dm, hub, timers, log, cfg.Service.Host, maxVersion, pingMillis)
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Router()}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down")
		cancel()
		timers.StopAll()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("listening on " + addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server exited: %v\n", err)
		os.Exit(1)
	}
}
