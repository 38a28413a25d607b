// Command glycin-sandbox-probe reports which sandbox backend this host
// would use and whether the tools it depends on are present, the way
// `wt doctor` reports agent and API key availability.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/glycin-go/internal/config"
	"github.com/ehrlich-b/glycin-go/internal/orchestrator"
	"github.com/ehrlich-b/glycin-go/internal/sandbox"
)

func main() {
	root := probeCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "glycin-sandbox-probe",
		Short: "Report sandbox backend availability and loader configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("glycin sandbox probe")
			fmt.Println()

			fmt.Println("backends:")
			reportTool("bwrap")
			reportTool("flatpak-spawn")
			fmt.Println()

			sel, err := orchestrator.ResolveSandbox(sandbox.SelectorAuto)
			if err != nil {
				fmt.Printf("resolved selector: error: %v\n", err)
			} else if sel == sandbox.SelectorAuto {
				fmt.Println("resolved selector: auto (first of flatpak-spawn, bwrap that's available)")
			} else {
				fmt.Printf("resolved selector: %s (from GLYCIN_SANDBOX)\n", sel)
			}
			fmt.Println()

			fmt.Printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Println()

			dirs, err := config.GetLoaderConfigDirs()
			if err != nil {
				return fmt.Errorf("resolve loader config dirs: %w", err)
			}
			fmt.Println("loader config search path:")
			for _, d := range dirs {
				marker := "missing"
				if _, err := os.Stat(d); err == nil {
					marker = "present"
				}
				fmt.Printf("  %-12s %s\n", marker, d)
			}
			fmt.Println()

			mgr := config.NewManager()
			if dir, err := config.GetUserConfigDir(); err == nil {
				if err := mgr.Load(dir); err != nil {
					fmt.Printf("runtime config: load error: %v\n", err)
				}
			}
			rc := mgr.Get()
			fmt.Println("runtime config:")
			fmt.Printf("  memory_budget_fraction %v\n", rc.MemoryBudgetFraction)
			fmt.Printf("  grace_kill_timeout_ms  %d\n", rc.GraceKillTimeoutMS)
			fmt.Printf("  seal_retries           %d\n", rc.SealRetries)
			fmt.Printf("  inline_blob_threshold  %d\n", rc.InlineBlobThreshold)
			fmt.Printf("  log_level              %s\n", rc.LogLevel)
			return nil
		},
	}
}

func reportTool(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("  %-14s not found\n", name)
		return
	}
	fmt.Printf("  %-14s %s\n", name, path)
}
