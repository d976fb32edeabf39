package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ChamsBouzaiene/trailblaze/internal/session"
)

// formatEvent renders one session event as a single line.
func formatEvent(e session.Event) string {
	ts := e.Time.Format("15:04:05.000")
	switch e.Kind {
	case session.EventStatus:
		if e.Status != nil {
			return fmt.Sprintf("%s  status  %s", ts, e.Status)
		}
	case session.EventLLMRequest:
		if r := e.LLMRequest; r != nil {
			return fmt.Sprintf("%s  llm →   call %d, %d messages, %d tools", ts, r.Call, r.Messages, len(r.Tools))
		}
	case session.EventLLMResponse:
		if r := e.LLMResponse; r != nil {
			if r.Error != "" {
				return fmt.Sprintf("%s  llm ←   error: %s", ts, r.Error)
			}
			names := make([]string, len(r.ToolCalls))
			for i, c := range r.ToolCalls {
				names[i] = c.Name
			}
			return fmt.Sprintf("%s  llm ←   %dms [%s]", ts, r.DurationMs, strings.Join(names, ", "))
		}
	case session.EventTool:
		if t := e.Tool; t != nil {
			line := fmt.Sprintf("%s  tool    %s %s → %s", ts, t.Name, t.Args, t.Status)
			if t.Message != "" {
				line += ": " + t.Message
			}
			return line
		}
	}
	return fmt.Sprintf("%s  %s", ts, e.Kind)
}

func printEvents(w io.Writer, events []session.Event) {
	for _, e := range events {
		fmt.Fprintln(w, formatEvent(e))
	}
}
