/*
Package ports defines the driven ports (interfaces) of the tuning core.

These interfaces decouple the move-and-record protocol from concrete controller
drivers and from wherever trial results end up, so the core can be exercised
against a simulated axis and in-memory sinks.

# Key Interfaces

  - AxisController: the capability set required from a motion-controller driver.
  - ReportSink: receives the processed result of every trial (console, plot, HTTP, journal).
  - Journal: stores trial summaries so gain changes can be compared across trials.
*/
package ports
