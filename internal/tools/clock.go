package tools

import (
	"context"
	"time"
)

// ClockTool reports the current date and time. Having it as a tool keeps the
// system prompt free of a timestamp that would bust provider prompt caches.
type ClockTool struct{}

func NewClockTool() *ClockTool { return &ClockTool{} }

func (t *ClockTool) Name() string { return "current_time" }

func (t *ClockTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

func (t *ClockTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": `IANA timezone name, e.g. "Europe/Paris". Defaults to local time.`,
			},
		},
	}
}

func (t *ClockTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	now := time.Now()
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ErrorResult("unknown timezone: " + tz)
		}
		now = now.In(loc)
	}
	return NewResult(now.Format("Monday, 2 January 2006 15:04:05 MST"))
}
