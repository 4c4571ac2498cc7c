// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/pelletier/go-toml"

	"github.com/nexhw/buttplug-go/internal/common"
)

// LoadServerConfig loads the server's TOML configuration file and returns
// the parsed ServerConfig. confDir defaults to common.ConfigDirectory when
// empty, the same resolution order the teacher's own LoadConfig uses.
func LoadServerConfig(confDir string) (*ServerConfig, error) {
	fmt.Fprintf(os.Stdout, "Init: confDir: %s\n", confDir)

	return loadConfigFromFile(confDir)
}

func loadConfigFromFile(confDir string) (config *ServerConfig, err error) {
	if len(confDir) == 0 {
		confDir = common.ConfigDirectory
	}

	path := path.Join(confDir, common.ConfigFileName)
	absPath, err := filepath.Abs(path)
	if err != nil {
		err = fmt.Errorf("Could not create absolute path to load configuration: %s; %v", path, err.Error())
		return nil, err
	}
	fmt.Fprintln(os.Stdout, fmt.Sprintf("Loading configuration from: %s\n", absPath))

	// As the toml package can panic if TOML is invalid,
	// or elements are found that don't match members of
	// the given struct, use a defered func to recover
	// from the panic and output a useful error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not load configuration file; invalid TOML (%s)", path)
		}
	}()

	config = &ServerConfig{}
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Could not load configuration file (%s): %v\nBe sure to change to program folder or set working directory.", path, err.Error())
	}

	// Decode the configuration from TOML
	//
	// TODO: invalid input can cause a SIGSEGV fatal error (INVESTIGATE)!!!
	//       - test missing keys, keys with wrong type, ...
	err = toml.Unmarshal(contents, config)
	if err != nil {
		return nil, fmt.Errorf("unable to parse configuration file (%s): %v", path, err.Error())
	}

	return config, nil
}
