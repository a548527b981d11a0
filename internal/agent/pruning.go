package agent

import (
	"log/slog"

	"github.com/nextlevelbuilder/aide/internal/providers"
)

// PruneConfig controls conversation trimming as the context window fills.
type PruneConfig struct {
	SoftRatio          float64
	HardRatio          float64
	KeepLastAssistants int
	ToolHeadChars      int
	ToolTailChars      int
}

func defaultPruneConfig() PruneConfig {
	return PruneConfig{
		SoftRatio:          0.75,
		HardRatio:          0.9,
		KeepLastAssistants: 3,
		ToolHeadChars:      600,
		ToolTailChars:      300,
	}
}

const prunedPlaceholder = "[tool result cleared to free context]"

// pruneMessages trims old tool results when the conversation approaches the
// model's context window. Soft pass keeps a head and tail of each old tool
// result; hard pass replaces them entirely. Messages at or after the last
// KeepLastAssistants assistant turns are never touched, nor is anything up
// to and including the first user message.
func pruneMessages(msgs []providers.Message, contextWindow int, cfg PruneConfig) []providers.Message {
	if contextWindow <= 0 || len(msgs) == 0 {
		return msgs
	}
	if cfg.SoftRatio <= 0 {
		cfg = defaultPruneConfig()
	}

	total := 0
	for _, m := range msgs {
		total += countTokens(m.Content)
	}
	if float64(total) < cfg.SoftRatio*float64(contextWindow) {
		return msgs
	}

	cutoff := assistantCutoff(msgs, cfg.KeepLastAssistants)
	floor := firstUserIndex(msgs) + 1

	hard := float64(total) >= cfg.HardRatio*float64(contextWindow)
	pruned := 0
	for i := floor; i < cutoff; i++ {
		if msgs[i].Role != providers.RoleTool {
			continue
		}
		content := msgs[i].Content
		if content == "" || content == prunedPlaceholder {
			continue
		}
		if hard {
			msgs[i].Content = prunedPlaceholder
			pruned++
			continue
		}
		if len(content) > cfg.ToolHeadChars+cfg.ToolTailChars {
			msgs[i].Content = content[:cfg.ToolHeadChars] +
				"\n[... trimmed ...]\n" +
				content[len(content)-cfg.ToolTailChars:]
			pruned++
		}
	}
	if pruned > 0 {
		slog.Debug("pruned conversation", "messages", pruned, "hard", hard, "tokens", total)
	}
	return msgs
}

// assistantCutoff returns the index of the keep-th most recent assistant
// message. Everything at or after it is protected from pruning.
func assistantCutoff(msgs []providers.Message, keep int) int {
	seen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			seen++
			if seen >= keep {
				return i
			}
		}
	}
	return 0
}

func firstUserIndex(msgs []providers.Message) int {
	for i, m := range msgs {
		if m.Role == providers.RoleUser {
			return i
		}
	}
	return 0
}
