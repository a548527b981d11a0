package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aide/internal/config"
)

func chatCmd() *cobra.Command {
	var (
		agentName string
		message   string
		noReload  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant interactively or send a one-shot message",
		Long: `Chat with the assistant.

Examples:
  aide chat                          # Interactive REPL
  aide chat --agent work             # Chat with the "work" agent
  aide chat -m "What time is it?"    # One-shot message`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(agentName, message, noReload)
		},
	}

	cmd.Flags().StringVarP(&agentName, "agent", "a", config.DefaultAgentID, "agent to talk to")
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "disable config hot reload")
	return cmd
}

func runChat(agentName, message string, noReload bool) {
	cfg := loadConfig()
	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if !noReload {
		if watcher, err := config.NewWatcher(resolveConfigPath()); err == nil {
			watcher.OnChange(rt.reload)
			if err := watcher.Start(); err == nil {
				defer watcher.Stop()
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if message != "" {
		if err := sendOnce(ctx, rt, agentName, message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runREPL(ctx, rt, agentName)
}

func sendOnce(ctx context.Context, rt *appRuntime, agentName, message string) error {
	loop, err := rt.loop(agentName)
	if err != nil {
		return err
	}
	res, err := loop.Run(ctx, message)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Status, res.Error)
	}
	fmt.Println(res.Output)
	return nil
}

func runREPL(ctx context.Context, rt *appRuntime, agentName string) {
	fmt.Fprintf(os.Stderr, "aide %s (agent: %s)\n", version, agentName)
	fmt.Fprintln(os.Stderr, `Type "exit" to quit, "/agents" to list agents, "/subagents" for sub-agent status`)
	fmt.Fprintln(os.Stderr)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch {
		case input == "exit" || input == "quit":
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		case input == "/agents":
			fmt.Fprintf(os.Stderr, "Agents: %s\n\n", strings.Join(rt.router.IDs(), ", "))
			continue
		case input == "/subagents":
			printSubAgents(rt)
			continue
		case strings.HasPrefix(input, "/agent "):
			agentName = strings.TrimSpace(strings.TrimPrefix(input, "/agent "))
			fmt.Fprintf(os.Stderr, "Now talking to %q\n\n", agentName)
			continue
		}

		loop, err := rt.loop(agentName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}
		res, err := loop.Run(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}
		if !res.Success {
			fmt.Fprintf(os.Stderr, "[%s] %s\n\n", res.Status, res.Error)
			if res.Output != "" {
				fmt.Printf("\n%s\n\n", res.Output)
			}
			continue
		}
		fmt.Printf("\n%s\n\n", res.Output)
	}
}

func printSubAgents(rt *appRuntime) {
	statuses := rt.supervisor.Statuses()
	if len(statuses) == 0 {
		fmt.Fprintln(os.Stderr, "No sub-agents running or recently finished.")
		fmt.Fprintln(os.Stderr)
		return
	}
	for _, st := range statuses {
		fmt.Fprintf(os.Stderr, "  %s  %-9s iter=%d tools=%s task=%q\n",
			st.ID.String()[:8], st.State, st.Iteration,
			strings.Join(st.ToolsUsed, ","), st.Task)
	}
	fmt.Fprintln(os.Stderr)
}
