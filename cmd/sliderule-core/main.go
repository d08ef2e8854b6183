// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command sliderule-core runs a standalone SlideRule core process: it
// defines a sample record type, wires a RecordDispatcher in front of a
// named MsgQ queue, optionally bridges the queue to NATS, and serves
// Prometheus metrics over HTTP, grounded on cmd/cc-backend/main.go's flag
// handling, startup sequencing and signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sliderule-earth/sliderule-core/internal/corecfg"
	"github.com/sliderule-earth/sliderule-core/pkg/dispatcher"
	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
	msgqmetrics "github.com/sliderule-earth/sliderule-core/pkg/msgq/metrics"
	"github.com/sliderule-earth/sliderule-core/pkg/natsbridge"
	"github.com/sliderule-earth/sliderule-core/pkg/recordobject"
)

const telemetryRecordType = "TelemetrySample"

func defineTelemetryRecord() (*recordobject.Definition, error) {
	return recordobject.DefineRecord(telemetryRecordType, "station_id", 40, []recordobject.FieldInit{
		{Name: "station_id", Type: recordobject.Uint32, Offset: 0, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "latitude", Type: recordobject.DoubleType, Offset: 8, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "longitude", Type: recordobject.DoubleType, Offset: 16, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "elevation", Type: recordobject.FloatType, Offset: 24, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "label", Type: recordobject.StringType, Offset: 28, Size: 12, Flags: recordobject.NativeFlags},
	}, 0)
}

func main() {
	var flagConfigFile, flagEnvFile, flagAddr string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Process configuration file")
	flag.StringVar(&flagEnvFile, "env", "./.env", "Environment overrides file, loaded before -config")
	flag.StringVar(&flagAddr, "listen", ":8090", "Address the metrics HTTP server listens on")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := corecfg.Init(flagConfigFile, flagEnvFile); err != nil {
		cclog.Fatalf("loading configuration: %s", err.Error())
	}

	if _, err := defineTelemetryRecord(); err != nil {
		cclog.Fatalf("defining %s record: %s", telemetryRecordType, err.Error())
	}

	if _, err := msgq.CreateOrLookup("telemetry.in", corecfg.Keys.StandardQueueDepth); err != nil {
		cclog.Fatalf("creating telemetry.in queue: %s", err.Error())
	}

	sub, err := msgq.Subscribe("telemetry.in", msgq.Confidence)
	if err != nil {
		cclog.Fatalf("subscribing to telemetry.in: %s", err.Error())
	}

	d, err := dispatcher.New(sub, dispatcher.Config{
		NumWorkers: corecfg.Keys.Dispatcher.NumWorkers,
		KeyMode:    dispatcher.FieldKeyMode,
		KeyField:   "station_id",
		QueueDepth: corecfg.Keys.Dispatcher.QueueDepth,
	})
	if err != nil {
		cclog.Fatalf("building dispatcher: %s", err.Error())
	}

	d.AttachHandler(telemetryRecordType, func(rec *recordobject.Record, key uint64) error {
		label, err := rec.GetValueText("label")
		if err != nil {
			return err
		}
		cclog.Debugf("telemetry: station %d (%s)", key, label)
		return nil
	})

	prometheus.MustRegister(msgqmetrics.NewCollector(nil))

	var bridge *natsbridge.Bridge
	if corecfg.Keys.NATS.Address != "" {
		bridge, err = natsbridge.NewBridge(corecfg.Keys.NATS, nil)
		if err != nil {
			cclog.Warnf("NATS bridge disabled: %s", err.Error())
		} else if err := bridge.ImportSubject("sliderule.telemetry", "telemetry.in", telemetryRecordType); err != nil {
			cclog.Warnf("NATS import subscription failed: %s", err.Error())
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Run(ctx); err != nil && err != context.Canceled {
			cclog.Errorf("dispatcher stopped: %s", err.Error())
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         flagAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		cclog.Infof("metrics server listening at %s", flagAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Errorf("metrics server: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cclog.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	if bridge != nil {
		bridge.Close()
	}
	sub.Close()
	wg.Wait()
	cclog.Info("shutdown complete")
}
