package cli

import (
	"os"
	"strings"
)

// Mode selects between the two front-end surfaces submittx exposes.
type Mode string

const (
	// ModeInteractive: flag-driven commands, human-readable output.
	ModeInteractive Mode = "interactive"

	// ModeDashboard: env-var input, single-line JSON to stdout, logs to
	// stderr. Meant for a frontend shelling out to submittx.
	ModeDashboard Mode = "dashboard"
)

// DetectMode reads SUBMITTX_MODE and returns ModeDashboard only for the
// exact value "dashboard" (case-insensitive); anything else, including
// unset, falls back to interactive.
func DetectMode() Mode {
	modeEnv := strings.ToLower(strings.TrimSpace(os.Getenv("SUBMITTX_MODE")))
	if modeEnv == "dashboard" {
		return ModeDashboard
	}
	return ModeInteractive
}

// IsInteractive reports whether the current invocation is interactive.
func IsInteractive() bool {
	return DetectMode() == ModeInteractive
}

// IsDashboard reports whether the current invocation is dashboard mode.
func IsDashboard() bool {
	return DetectMode() == ModeDashboard
}
