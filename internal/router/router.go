// Package router supplies the reasoning stage with the tool menu and the
// natural-language routing policy, and constrains what comes back. It does
// not classify utterances itself; ambiguity is resolved by the model.
package router

import (
	"fmt"
	"strings"

	"github.com/svaddadi/roomagent/internal/brain"
	"github.com/svaddadi/roomagent/internal/tools"
)

// Policy holds the persona prompt the routing rules are appended to.
type Policy struct {
	BasePrompt string
}

// Instructions renders the system instructions for one reasoning turn:
// the base persona, the callable tool menu, and the disambiguation rules.
func (p Policy) Instructions(reg *tools.Registry) string {
	var b strings.Builder
	base := strings.TrimSpace(p.BasePrompt)
	if base == "" {
		base = "You are a friendly voice assistant."
	}
	b.WriteString(base)
	b.WriteString("\n\nYou can call the following tools to fetch information:\n")
	for _, d := range reg.List() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	fmt.Fprintf(&b, `
Routing rules:
- Use %s only when the user names or implies a specific client or asks about personal or financial data.
- Use %s for any other informational question.
- Call at most one tool per turn, then answer from its result.
- If a tool fails, apologize briefly and offer to try again; never read the failure out loud.
- Never mention tool names, reference codes or any internal machinery to the user.
Answers are spoken aloud, so keep them short and conversational.`,
		tools.ClientDataName, tools.GeneralLookupName)
	return b.String()
}

// Menu renders the registry as the schema list advertised to the model.
func Menu(reg *tools.Registry) []brain.ToolSchema {
	descriptors := reg.List()
	out := make([]brain.ToolSchema, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, brain.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema(),
		})
	}
	return out
}

// SelectCall accepts at most one tool selection per reasoning turn.
// When the model emits several, the first is taken and the rest dropped.
func SelectCall(result brain.TurnResult) (brain.ToolCall, bool) {
	if len(result.ToolCalls) == 0 {
		return brain.ToolCall{}, false
	}
	return result.ToolCalls[0], true
}
