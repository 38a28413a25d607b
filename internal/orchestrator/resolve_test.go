package orchestrator

import (
	"os"
	"testing"

	"github.com/ehrlich-b/glycin-go/internal/sandbox"
)

func TestResolveSandboxExplicitWins(t *testing.T) {
	os.Setenv("GLYCIN_SANDBOX", "flatpak-spawn")
	defer os.Unsetenv("GLYCIN_SANDBOX")

	sel, err := ResolveSandbox(sandbox.SelectorBwrap)
	if err != nil {
		t.Fatalf("ResolveSandbox: %v", err)
	}
	if sel != sandbox.SelectorBwrap {
		t.Fatalf("got %v, want explicit selector to win over env", sel)
	}
}

func TestResolveSandboxFallsBackToEnv(t *testing.T) {
	os.Setenv("GLYCIN_SANDBOX", "not-sandboxed")
	defer os.Unsetenv("GLYCIN_SANDBOX")

	sel, err := ResolveSandbox(sandbox.SelectorAuto)
	if err != nil {
		t.Fatalf("ResolveSandbox: %v", err)
	}
	if sel != sandbox.SelectorNotSandboxed {
		t.Fatalf("got %v, want not-sandboxed from env", sel)
	}
}

func TestResolveSandboxRejectsUnknownEnvValue(t *testing.T) {
	os.Setenv("GLYCIN_SANDBOX", "something-bogus")
	defer os.Unsetenv("GLYCIN_SANDBOX")

	if _, err := ResolveSandbox(sandbox.SelectorAuto); err == nil {
		t.Fatal("expected an error for an unrecognized GLYCIN_SANDBOX value")
	}
}

func TestResolveSandboxDefaultsToAutoWithNoEnv(t *testing.T) {
	os.Unsetenv("GLYCIN_SANDBOX")

	sel, err := ResolveSandbox(sandbox.SelectorAuto)
	if err != nil {
		t.Fatalf("ResolveSandbox: %v", err)
	}
	if sel != sandbox.SelectorAuto {
		t.Fatalf("got %v, want auto when nothing overrides it", sel)
	}
}
