/*
Package domain contains the core models of the move-and-record tuning protocol.

It defines what a tuning session talks about, independently of any controller
wire format or console: the axis being tuned, its PID gains and motion profile,
the recorder configuration, the recorded trace and the outcome of a trial.
This package has no I/O and no dependencies outside the standard library.

# Key Entities

  - Axis: one controllable degree of freedom and its unit conversion factor.
  - Gains: the proportional, integral and derivative parameters of an axis.
  - MotionProfile: the closed-loop velocity and acceleration pinned for a session.
  - RecordingConfig: which recorder slot samples which position signal.
  - SampleTrace: the commanded/actual pairs recorded by the controller during a move.
  - Outcome: how a trial ended (on target, timeout or controller error).
*/
package domain
