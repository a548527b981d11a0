package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aide/internal/config"
)

func agentsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List configured agents",
		Run: func(cmd *cobra.Command, args []string) {
			runAgentsList(jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

type agentListEntry struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	MaxIterations int    `json:"maxIterations"`
	IsDefault     bool   `json:"isDefault"`
}

func runAgentsList(jsonOutput bool) {
	cfg := loadConfig()
	d := cfg.Agents.Defaults

	entries := []agentListEntry{{
		ID:            config.DefaultAgentID,
		Provider:      d.Provider,
		Model:         d.Model,
		MaxIterations: d.MaxIterations,
		IsDefault:     true,
	}}
	for name, ac := range cfg.Agents.Named {
		e := agentListEntry{
			ID:            config.NormalizeAgentID(name),
			Provider:      ac.Provider,
			Model:         ac.Model,
			MaxIterations: ac.MaxIterations,
		}
		if e.Provider == "" {
			e.Provider = d.Provider
		}
		if e.Model == "" {
			e.Model = d.Model
		}
		if e.MaxIterations <= 0 {
			e.MaxIterations = d.MaxIterations
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tMODEL\tMAX ITER\tDEFAULT")
	for _, e := range entries {
		def := ""
		if e.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.ID, e.Provider, e.Model, e.MaxIterations, def)
	}
	w.Flush()
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools agents can call",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			reg := buildToolRegistry(cfg)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, name := range reg.Names() {
				t, _ := reg.Get(name)
				desc := t.Description()
				if len(desc) > 80 {
					desc = desc[:77] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\n", name, desc)
			}
			w.Flush()
		},
	}
}
