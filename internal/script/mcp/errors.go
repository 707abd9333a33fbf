package mcp

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
)

// maxSuggestions bounds how many near-miss names an error carries.
const maxSuggestions = 3

// ServerNotFoundError reports a reference to a server that is not registered.
type ServerNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *ServerNotFoundError) Error() string {
	msg := fmt.Sprintf("MCP server '%s' not found", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", quoteJoin(e.Suggestions))
	}
	return msg
}

// ToolNotFoundError reports a tool the server does not advertise.
type ToolNotFoundError struct {
	Server      string
	Tool        string
	Suggestions []string
}

func (e *ToolNotFoundError) Error() string {
	msg := fmt.Sprintf("tool '%s' not found in MCP server '%s'", e.Tool, e.Server)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", quoteJoin(e.Suggestions))
	}
	return msg
}

// suggest returns the closest known names to the requested one.
func suggest(name string, known []string) []string {
	matches := fuzzy.Find(name, known)
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	return lo.Map(matches, func(m fuzzy.Match, _ int) string {
		return m.Str
	})
}

func quoteJoin(names []string) string {
	quoted := lo.Map(names, func(s string, _ int) string {
		return "'" + s + "'"
	})
	return strings.Join(quoted, " or ")
}
