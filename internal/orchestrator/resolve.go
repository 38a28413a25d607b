// Package orchestrator drives one decode request end to end: resolving
// which sandbox backend to use, spawning the decoder process, and
// conducting the IPC conversation that yields an Image.
package orchestrator

import (
	"os"

	"github.com/ehrlich-b/glycin-go/internal/logger"
	"github.com/ehrlich-b/glycin-go/internal/sandbox"
)

// ResolveSandbox applies the same precedence chain this codebase uses
// elsewhere for config resolution: an explicit per-request selector wins
// over the GLYCIN_SANDBOX environment variable, which wins over
// auto-detection. Auto-detection never silently lands on
// SelectorNotSandboxed — that requires an explicit choice at either
// level.
func ResolveSandbox(explicit sandbox.Selector) (sandbox.Selector, error) {
	if explicit != sandbox.SelectorAuto {
		return explicit, nil
	}
	if env := os.Getenv("GLYCIN_SANDBOX"); env != "" {
		sel := sandbox.Selector(env)
		switch sel {
		case sandbox.SelectorBwrap, sandbox.SelectorFlatpakSpawn, sandbox.SelectorNotSandboxed:
			logger.Debug("orchestrator: sandbox selector from GLYCIN_SANDBOX", "selector", sel)
			return sel, nil
		default:
			return "", unknownSelectorError(env)
		}
	}
	return sandbox.SelectorAuto, nil
}

func unknownSelectorError(v string) error {
	return &unknownSelector{value: v}
}

type unknownSelector struct{ value string }

func (e *unknownSelector) Error() string {
	return "orchestrator: unknown GLYCIN_SANDBOX value " + e.value
}
