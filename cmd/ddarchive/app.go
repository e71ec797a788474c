// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AleutianAI/ddarchive/cmd/ddarchive/config"
	"github.com/AleutianAI/ddarchive/pkg/logging"
	"github.com/AleutianAI/ddarchive/services/decoder"
	"github.com/AleutianAI/ddarchive/services/journal"
	"github.com/AleutianAI/ddarchive/services/monitor"
	"github.com/AleutianAI/ddarchive/services/process"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// =============================================================================
// Dependencies
// =============================================================================

// appDeps overrides the parts of the app that touch the machine. Zero
// values select the real implementations.
type appDeps struct {
	// runner executes java. Default: process.NewExecRunner().
	runner process.Runner

	// game reports whether the game is running. Default: a gopsutil
	// detector for config.GameProcess.
	game process.Detector

	// hotkey is the F5 listener. Default: monitor.NewSystemHotkey.
	hotkey monitor.Hotkey

	// detector finds the Steam save root. Default: config.NewDetector().
	detector *config.Detector

	// quiet disables console logging (the terminal front end owns the screen).
	quiet bool

	// assumeClosed treats the game as closed without listing processes.
	assumeClosed bool
}

// app holds the wired services for one command invocation.
type app struct {
	cfg      *config.AppConfig
	cfgPath  string
	logger   *logging.Logger
	decoder  *decoder.Decoder
	snaps    *snapshot.Manager
	journal  *journal.Journal
	engine   *monitor.Engine
	registry *prometheus.Registry
}

// loadConfig reads the config file, creating and auto-detecting on first run.
func loadConfig(path string, deps appDeps) (*config.AppConfig, string, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	detector := deps.detector
	if detector == nil {
		detector = config.NewDetector()
	}
	cfg, err := config.Load(path, detector)
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return cfg, abs, nil
}

// newApp wires configuration, logging, the decoder, the snapshot manager,
// the history journal and the monitor engine.
//
// # Description
//
// The journal is optional: when it cannot be opened (typically because
// another ddarchive process holds its lock) a warning is logged and
// snapshot actions are not recorded for this run.
//
// # Inputs
//
//   - cfgPath: config file; "" uses config.yaml next to the executable
//   - deps: test overrides
//
// # Outputs
//
//   - *app: call Close when done
//   - error: config load failure, invalid hotkey or snapshot manager setup failure
func newApp(cfgPath string, deps appDeps) (*app, error) {
	cfg, absPath, err := loadConfig(cfgPath, deps)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogsRoot(),
		Service: "ddarchive",
		Quiet:   deps.quiet,
	})

	runner := deps.runner
	if runner == nil {
		runner = process.NewExecRunner()
	}
	dec := decoder.New(cfg.JarFile(), cfg.JavaBin, runner)

	game := deps.game
	switch {
	case game != nil:
	case deps.assumeClosed:
		game = process.NewStatic(false)
	default:
		game = process.NewDetector(cfg.GameProcess)
	}

	snaps, err := snapshot.NewManager(snapshot.Options{
		SnapshotsRoot:      cfg.SnapshotsRoot(),
		SaveRoot:           cfg.SaveRoot,
		Profile:            cfg.Profile,
		RetentionPerBucket: cfg.RetentionPerBucket,
		IntegrityRetry:     cfg.IntegrityRetry,
		QuietWindow:        cfg.QuietWindow(),
	}, dec, game, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	jcfg := journal.DefaultConfig(filepath.Join(cfg.SnapshotsRoot(), journal.DirName))
	jcfg.Logger = logger.With("component", "journal").Slog()
	jr, err := journal.Open(jcfg)
	if err != nil {
		logger.Warn("history journal unavailable", "error", err)
		jr = nil
	} else {
		snaps.SetRecorder(jr)
	}

	hotkey := deps.hotkey
	if hotkey == nil {
		hotkey, err = monitor.NewSystemHotkey(hotkeyName(cfg), logger)
		if err != nil {
			if jr != nil {
				jr.Close()
			}
			logger.Close()
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := monitor.NewEngine(monitor.Options{
		StatePollInterval:       cfg.StatePollInterval(),
		InRaidPollInterval:      cfg.InRaidStatePollInterval(),
		RuntimeSnapshotInterval: cfg.RuntimeSnapshotInterval(),
		WatchChanges:            true,
	}, dec, snaps, game, hotkey, monitor.NewMetrics(registry), logger)

	return &app{
		cfg:      cfg,
		cfgPath:  absPath,
		logger:   logger,
		decoder:  dec,
		snaps:    snaps,
		journal:  jr,
		engine:   engine,
		registry: registry,
	}, nil
}

func hotkeyName(cfg *config.AppConfig) string {
	if cfg.Hotkey == "" {
		return "F5"
	}
	return cfg.Hotkey
}

// saveConfig writes the current config back to its file.
func (a *app) saveConfig() error {
	return config.Save(a.cfg, a.cfgPath)
}

// Close stops the monitor and releases the journal and the action log.
func (a *app) Close() error {
	var errs []error
	if err := a.engine.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop monitor: %w", err))
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := a.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
