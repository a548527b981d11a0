package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// countTokens estimates the token footprint of a string. Falls back to a
// chars/4 heuristic when the encoding cannot be loaded (offline first run).
func countTokens(s string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return len(s) / 4
	}
	return len(enc.Encode(s, nil, nil))
}
