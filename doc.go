/*
Package pidtune tunes the PID gains of one closed-loop motion-controller axis.

Each trial commands a relative move while the controller records its commanded and actual
position, waits for the axis to settle within a bounded time, and returns the recorded trace
converted to meters and timestamped. Between trials the operator revises the gains and the
move distance; the controller stays the source of truth for the gains.

# Usage

A Tuner wraps any ports.AxisController. The simulated axis needs no hardware:

	ctrl := sim.New()
	defer ctrl.Close()

	tuner := pidtune.New(ctrl, domain.Axis{ID: "1", UnitFactor: 1e-3})
	report, err := tuner.Trial(ctx, 100e-6)
	if err != nil {
		log.Fatal(err)
	}
	stats := trace.Summarize(report.Trace.Samples())

Interactive runs the operator console instead; see package runner.

# Architecture

  - pkg/domain: axis, gains, recording configuration, outcomes and error kinds.
  - pkg/ports: the AxisController port, report sinks and the trial journal.
  - pkg/profile: move-duration estimate and recorder sizing.
  - pkg/session: the move-and-record protocol (Idle, Armed, Moving, Draining, Complete).
  - pkg/trace: conversion of the raw recorder buffer into a one-shot sample sequence.
  - pkg/runner: the operator trial loop.
  - pkg/adapters: controller drivers (gcs, sim) and sinks (console, plot, http, redis, memory).
*/
package pidtune
