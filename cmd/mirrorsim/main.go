// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// mirrorsim computes the residual surface of the configured telescope
// mirrors for one observing geometry and writes the grid residue maps and
// Zernike coefficient files read by the optics design program.
//
// Usage:
//
//	mirrorsim -config mirrors.cfg [options]
//
// Options:
//
//	-config string   Pipeline configuration file (required)
//	-mirror string   Run only this mirror (default: every configured mirror)
//	-zenith float    Zenith angle in degrees (default: [observation])
//	-terms int       Zernike terms to remove (default: mirror's num_terms)
//	-grid int        Interior grid nodes per axis (default: mirror's grid_n)
//	-lut             Print the look-up table actuator forces instead of running
//	-json            Print results as JSON
//	-debug           Enable debug logging
//	-logfile string  Log file path (default: stderr)
//
// Examples:
//
//	# Run every mirror at the configured geometry
//	mirrorsim -config mirrors.cfg
//
//	# M1M3 only, 45 degrees from zenith, 28 terms removed
//	mirrorsim -config mirrors.cfg -mirror m1m3 -zenith 45 -terms 28
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/mirror"
)

func main() {
	configFile := flag.String("config", "", "Pipeline configuration file (required)")
	mirrorName := flag.String("mirror", "", "Run only this mirror (default: all)")
	zenith := flag.Float64("zenith", 0, "Zenith angle in degrees (default: [observation])")
	terms := flag.Int("terms", 0, "Zernike terms to remove (default: mirror's num_terms)")
	gridN := flag.Int("grid", 0, "Interior grid nodes per axis (default: mirror's grid_n)")
	lutOnly := flag.Bool("lut", false, "Print look-up table actuator forces instead of running")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")

	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config is required\n")
		flag.Usage()
		os.Exit(2)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	logger := log.New("mirrorsim")
	if *logFile != "" {
		fl, w, err := log.NewFileLogger("mirrorsim", log.RotationConfig{Filename: *logFile}, false)
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
	if set["zenith"] {
		mc.Observation.ZenithAngleDeg = *zenith
	}

	sections := mc.Mirrors
	if *mirrorName != "" {
		sec, ok := mc.Mirror(*mirrorName)
		if !ok {
			logger.Error("no mirror named %q in %s", *mirrorName, *configFile)
			os.Exit(1)
		}
		sections = []config.MirrorSection{sec}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var results []any
	for _, sec := range sections {
		p, err := mirror.NewPipeline(sec, mc.Workers, logger, nil)
		if err != nil {
			logger.WithError(err).Error("mirror " + sec.Name)
			os.Exit(1)
		}

		if *lutOnly {
			forces, err := p.LUTForces(mc.Observation.ZenithAngleDeg)
			if err != nil {
				logger.WithError(err).Error("lut " + sec.Name)
				os.Exit(1)
			}
			results = append(results, map[string]any{"mirror": sec.Name, "forces": forces})
			if !*asJSON {
				fmt.Printf("%s: %d actuator forces at %g deg\n", sec.Name, len(forces), mc.Observation.ZenithAngleDeg)
				for i, f := range forces {
					fmt.Printf("  %4d %12.4f\n", i+1, f)
				}
			}
			continue
		}

		req := mirror.RequestFromConfig(sec, mc.Observation)
		if set["terms"] {
			req.NumTerms = *terms
		}
		if set["grid"] {
			req.GridN = *gridN
		}
		res, err := p.Run(ctx, req)
		if err != nil {
			logger.WithError(err).Error("run " + sec.Name)
			os.Exit(1)
		}
		results = append(results, res)
		if !*asJSON {
			printResult(res)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			logger.WithError(err).Error("encode results")
			os.Exit(1)
		}
	}
}

func printResult(res *mirror.Result) {
	for _, s := range res.Surfaces {
		fmt.Printf("%s/%s: rms %.6g um, %dx%d grid (%d zero-filled)\n",
			res.Mirror, s.Surface, s.RMS, s.NumX, s.NumY, s.ZeroFilled)
		for _, path := range []string{s.ResidueMap, s.ZernikeFile, s.Plot} {
			if path != "" {
				fmt.Printf("  %s\n", path)
			}
		}
	}
}
