// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package corecfg holds the process-wide configuration for a SlideRule
// core process: queue defaults, I/O limits, the optional NATS bridge, and
// dispatcher scheduling, grounded on internal/config/config.go's
// package-level Keys pattern and validated the same way with
// internal/config/validate.go's jsonschema.CompileString use.
package corecfg

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
	"github.com/sliderule-earth/sliderule-core/pkg/natsbridge"
)

// DispatcherDefaults holds the fields of dispatcher.Config that a process
// configures up front rather than per-Dispatcher-instance.
type DispatcherDefaults struct {
	NumWorkers   int `json:"num_workers"`
	TickPeriodMS int `json:"tick_period_ms"`
	QueueDepth   int `json:"queue_depth"`
}

// Config is the full process configuration document.
type Config struct {
	StandardQueueDepth int                `json:"standard_queue_depth"`
	IOTimeoutMS        int                `json:"io_timeout_ms"`
	IOMaxSize          int                `json:"io_maxsize"`
	NATS               natsbridge.Config  `json:"nats"`
	Dispatcher         DispatcherDefaults `json:"dispatcher"`
}

// Keys is the process-wide configuration, populated by Init.
var Keys = Config{
	StandardQueueDepth: 1024,
	IOTimeoutMS:        1000,
	IOMaxSize:          1 << 20,
	Dispatcher: DispatcherDefaults{
		NumWorkers: 4,
		QueueDepth: 256,
	},
}

// Init loads environment overrides from envFile (if it exists) via
// godotenv, then reads and validates configFile into Keys. A missing
// configFile is not an error: Keys keeps its defaults.
func Init(configFile, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if configFile == "" {
		return nil
	}

	raw, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := Validate(raw); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return err
	}

	applyEnvOverrides()
	msgq.Keys.StandardQueueDepth = Keys.StandardQueueDepth
	return nil
}

// Validate checks raw against configSchema, the same CompileString-based
// check internal/config/validate.go runs before decoding.
func Validate(raw json.RawMessage) error {
	sch, err := jsonschema.CompileString("corecfg.schema.json", configSchema)
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		return err
	}
	return nil
}

// applyEnvOverrides lets deployment secrets (NATS credentials in
// particular) come from the environment instead of the config file,
// filled in by godotenv.Load above when a .env file is present.
func applyEnvOverrides() {
	if v := os.Getenv("SLIDERULE_NATS_ADDRESS"); v != "" {
		Keys.NATS.Address = v
	}
	if v := os.Getenv("SLIDERULE_NATS_USERNAME"); v != "" {
		Keys.NATS.Username = v
	}
	if v := os.Getenv("SLIDERULE_NATS_PASSWORD"); v != "" {
		Keys.NATS.Password = v
	}
	if v := os.Getenv("SLIDERULE_NATS_CREDS_FILE"); v != "" {
		Keys.NATS.CredsFilePath = v
	}
}
