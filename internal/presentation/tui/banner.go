package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the pidtune banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Indigo to rose, one color per line.
	lines := []struct{ text, color string }{
		{`        _     _ _                    `, "#818cf8"},
		{`  _ __ (_) __| | |_ _   _ _ __   ___ `, "#a78bfa"},
		{` | '_ \| |/ _' | __| | | | '_ \ / _ \`, "#c084fc"},
		{` | |_) | | (_| | |_| |_| | | | |  __/`, "#e879f9"},
		{` | .__/|_|\__,_|\__|\__,_|_| |_|\___|`, "#f472b6"},
		{` |_|                                 `, "#fb7185"},
	}

	fmt.Fprintln(out)
	for _, l := range lines {
		fmt.Fprintln(out, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(out, out.String("  closed-loop axis tuning "+version).Faint())
	fmt.Fprintln(out)
}
