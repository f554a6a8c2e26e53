/*
Package session implements the recording session manager: the per-trial state
machine that sizes the recorder window, issues a recorded relative move, polls
for completion within a bounded budget and retrieves the trace.

A trial moves through Idle -> Armed -> Moving -> Draining -> Complete. Whatever
ends the motion (on target, timeout or controller fault), the recorder is always
given its full window before the trace is read, so every trace covers the same
buffer-aligned duration.
*/
package session
