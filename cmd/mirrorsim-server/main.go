// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// mirrorsim-server serves the mirror pipeline as a JSON-RPC 2.0 API over
// HTTP (/jsonrpc) and websockets (/websocket).
//
// Usage:
//
//	mirrorsim-server -config mirrors.cfg [options]
//
// Options:
//
//	-config string   Pipeline configuration file (required)
//	-addr string     API address (default: [server] address)
//	-metrics string  Separate metrics listener (default: [server] metrics_address)
//	-debug           Enable debug logging
//	-logfile string  Log file path (default: stderr)
//
// /metrics is always served on the API address; -metrics adds a dedicated
// listener with /health and /ready for scrapers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mirrorsim/pkg/api"
	"mirrorsim/pkg/config"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/metrics"
)

func main() {
	configFile := flag.String("config", "", "Pipeline configuration file (required)")
	addr := flag.String("addr", "", "API address (default: [server] address)")
	metricsAddr := flag.String("metrics", "", "Separate metrics listener (default: [server] metrics_address)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")

	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config is required\n")
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New("mirrorsim")
	if *logFile != "" {
		fl, w, err := log.NewFileLogger("mirrorsim", log.RotationConfig{
			Filename:   *logFile,
			MaxSize:    50,
			MaxBackups: 5,
			Compress:   true,
		}, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		logger = fl
	}
	log.ConfigureFromEnv(logger)
	if *debug {
		logger.SetLevel(log.DEBUG)
	}

	mc, err := config.ParseMirrorConfig(*configFile)
	if err != nil {
		logger.WithError(err).Error("configuration")
		os.Exit(1)
	}
	if *addr == "" {
		*addr = mc.Server.Address
	}
	if *metricsAddr == "" {
		*metricsAddr = mc.Server.MetricsAddress
	}

	mm := metrics.NewMirrorMetrics()
	srv, err := api.New(api.Config{Addr: *addr, Mirrors: mc, Metrics: mm, Logger: logger})
	if err != nil {
		logger.WithError(err).Error("server setup")
		os.Exit(1)
	}

	var ms *metrics.Server
	if *metricsAddr != "" {
		ms = metrics.NewServer(mm, *metricsAddr)
		errCh := ms.StartAsync()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("metrics server")
			}
		}()
		logger.WithField("address", *metricsAddr).Info("metrics server started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if ms != nil {
			ms.Shutdown(ctx)
		}
		if err := srv.Stop(ctx); err != nil {
			logger.WithError(err).Warn("API server shutdown")
		}
	}()

	for _, m := range mc.Mirrors {
		logger.WithFields(log.Fields{"mirror": m.Name, "kind": m.Kind, "data_dir": m.DataDir}).Info("mirror configured")
	}
	if err := srv.Start(); err != nil {
		logger.WithError(err).Error("API server")
		os.Exit(1)
	}
}
