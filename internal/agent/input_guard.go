package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// injectionPatterns flag user input that tries to override the system
// prompt or exfiltrate credentials. Matches are logged, never blocked;
// the model still sees the original input.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(your|the)\s+(system\s+)?prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+prompt|instructions|api\s+key)`),
	regexp.MustCompile(`(?i)print\s+(your|the)\s+(system\s+prompt|credentials)`),
}

// scanInput checks user input for prompt-injection markers and logs a
// warning with the matched pattern. Returns the number of matches.
func scanInput(agentID, input string) int {
	if strings.TrimSpace(input) == "" {
		return 0
	}
	hits := 0
	for _, re := range injectionPatterns {
		if m := re.FindString(input); m != "" {
			hits++
			slog.Warn("suspicious input pattern", "agent", agentID, "match", m)
		}
	}
	return hits
}
