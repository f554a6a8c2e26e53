/*
Package gcs drives a motion controller that speaks the PI General Command Set (GCS),
an ASCII line protocol available over RS-232, USB virtual serial ports and TCP.

Commands used:

	DRC <table> <axis> <option>   bind a recorder table to a signal (1 commanded, 2 actual position)
	RTR <divisor>                 record-rate divisor
	DRT 0 1 0                     start recording on the next motion command
	MVR <axis> <distance>         relative move, native units
	VEL / ACC / DEC               closed-loop velocity, acceleration and deceleration
	ONT? <axis>                   on-target state
	STP                           stop all axes (sets error 10)
	SPA / SPA? <axis> <id>        parameter write and read
	DRR? <start> <n> <tables...>  read recorded data in GCS array format
	ERR?                          read and clear the error code

Commands without an answer are followed by ERR? so a refusal is reported on the call that
caused it. A query the controller does not understand produces no answer at all: the driver
waits for the read timeout, then asks ERR? to tell an unknown query apart from a dead link.
*/
package gcs
