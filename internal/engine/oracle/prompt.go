package oracle

import (
	"fmt"
	"strings"

	"coderefactor/internal/core/ports"
)

const systemPrompt = "Think step-by-step about the code analysis problem before responding."

// buildPrompt asks for a whole-file rewrite that fixes exactly one issue.
func buildPrompt(source string, ic ports.IssueContext) string {
	lang := ic.Language
	if lang == "" {
		lang = "text"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a senior software engineer helping refactor code. I have the following %s code that needs improvement:\n\n", lang)
	fmt.Fprintf(&b, "```%s\n%s\n```\n\n", lang, strings.TrimRight(source, "\n"))
	fmt.Fprintf(&b, "The issue that needs to be fixed is: %s", describe(ic))
	if ic.Snippet != "" {
		fmt.Fprintf(&b, "\n\nThe affected lines are:\n```%s\n%s\n```", lang, ic.Snippet)
	}
	b.WriteString(`

Please provide your refactoring suggestion in this JSON format:
` + "```json" + `
{
  "refactored_code": "The entire refactored code",
  "explanation": "A detailed explanation of the changes and why they address the issue"
}
` + "```" + `

The refactored code should maintain the same functionality while addressing the issue. Only make changes that are necessary to fix the described issue.
`)
	return b.String()
}

func describe(ic ports.IssueContext) string {
	parts := make([]string, 0, 4)
	if ic.RuleID != "" {
		parts = append(parts, "["+ic.RuleID+"]")
	}
	parts = append(parts, ic.Message)
	if ic.Location.Known() {
		parts = append(parts, fmt.Sprintf("(line %d)", ic.Location.StartLine))
	}
	out := strings.Join(parts, " ")
	if ic.Description != "" && ic.Description != ic.Message {
		out += "\n" + ic.Description
	}
	return out
}
