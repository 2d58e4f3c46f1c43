package ui

import (
	"io"
	"os"
	"runtime"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// unicodeCapable reports whether w can render box-drawing and symbol
// glyphs. Piped output, TERM=dumb and legacy Windows consoles cannot.
func unicodeCapable(w io.Writer) bool {
	if os.Getenv("TERM") == "dumb" || !IsTerminal(w) {
		return false
	}
	if runtime.GOOS == "windows" {
		// Windows Terminal sets WT_SESSION; legacy conhost does not.
		return os.Getenv("WT_SESSION") != ""
	}
	return true
}

// colorProfile picks the richest profile w supports. NO_COLOR and
// non-terminals get plain ASCII.
func colorProfile(w io.Writer, noColor bool) termenv.Profile {
	if noColor || os.Getenv("NO_COLOR") != "" || !IsTerminal(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}
