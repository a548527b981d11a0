package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aide/internal/agent"
	"github.com/nextlevelbuilder/aide/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("aide doctor")
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults in effect)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	if len(cfg.Providers) == 0 {
		fmt.Println("    (none configured)")
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checkProvider(name, cfg.Providers[name].APIKey)
	}

	fmt.Println()
	fmt.Println("  Sub-agent templates:")
	if tpls, err := agent.LoadTemplates(cfg.SubAgents.TemplatesFile); err != nil {
		fmt.Printf("    load error: %s\n", err)
	} else {
		ids := make([]string, 0, len(tpls))
		for id := range tpls {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("    %-12s %s\n", id+":", tpls[id].Description)
		}
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("curl")
	checkBinary("git")

	fmt.Println()
	ws := cfg.Agents.Defaults.Workspace
	fmt.Printf("  Workspace: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey != "" {
		masked := apiKey
		if len(masked) > 8 {
			masked = masked[:4] + strings.Repeat("*", len(masked)-8) + masked[len(masked)-4:]
		}
		fmt.Printf("    %-12s %s\n", name+":", masked)
	} else {
		fmt.Printf("    %-12s (no API key)\n", name+":")
	}
}

func checkBinary(name string) {
	if path, err := exec.LookPath(name); err == nil {
		fmt.Printf("    %-12s %s\n", name+":", path)
	} else {
		fmt.Printf("    %-12s (not found)\n", name+":")
	}
}
