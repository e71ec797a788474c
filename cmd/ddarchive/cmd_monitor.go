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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/pkg/ux"
	"github.com/AleutianAI/ddarchive/services/monitor"
)

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := newMetricsServer(metricsAddr, a.registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		ux.Info("metrics on http://" + metricsAddr + "/metrics")
	}

	return monitorLoop(ctx, a)
}

// monitorLoop starts the engine with the hotkey and prints events until
// ctx is cancelled.
func monitorLoop(ctx context.Context, a *app) error {
	if err := a.engine.Start(ctx, true); err != nil {
		return fmt.Errorf("monitor start failed: %w", err)
	}
	ux.Info("Monitor running. Press Ctrl+C to stop.")

	for {
		select {
		case <-ctx.Done():
			ux.Info("Stopping monitor...")
			return a.engine.Stop()
		case ev := <-a.engine.Events():
			if line := formatEvent(ev); line != "" {
				ux.Info(line)
			}
		}
	}
}

// formatEvent renders the events the monitor command prints. State events
// are not printed.
func formatEvent(ev monitor.Event) string {
	switch ev.Type {
	case monitor.EventSnapshotCreated:
		if ev.Snapshot == nil {
			return ""
		}
		return fmt.Sprintf("[snapshot] %s %s %s", ev.Snapshot.Bucket, ev.Snapshot.SnapshotID, ev.Snapshot.Reason)
	case monitor.EventAnchorSet:
		if ev.Snapshot == nil {
			return ""
		}
		return fmt.Sprintf("[anchor] %s %s", ev.Snapshot.Bucket, ev.Snapshot.SnapshotID)
	case monitor.EventRestoreDone:
		if ev.Snapshot == nil {
			return ""
		}
		return fmt.Sprintf("[restore] %s", ev.Snapshot.SnapshotID)
	case monitor.EventHotkey:
		if ev.Registered {
			return "[info] hotkey registered"
		}
		return "[info] hotkey unavailable, F5 snapshots disabled"
	case monitor.EventError:
		return "[error] " + ev.Message
	case monitor.EventInfo:
		return "[info] " + ev.Message
	}
	return ""
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
