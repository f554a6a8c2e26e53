package runner

import "context"

// IOHandler defines the strategy for interacting with the operator.
// This allows switching between Text (console) and JSON (scripted) modes.
type IOHandler interface {
	// Output presents a status or result line.
	Output(ctx context.Context, text string) error

	// Render presents a markdown document (e.g. help). Handlers may render it richly.
	Render(ctx context.Context, markdown string) error

	// Input reads one operator line, trimmed.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (errors, warnings) distinct from results.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms markdown before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
