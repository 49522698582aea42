package parser

import (
	"context"
	"fmt"
)

// Validator checks that a candidate source still parses. It satisfies
// ports.SyntaxValidator.
type Validator struct {
	parser *Parser
}

func NewValidator(p *Parser) *Validator {
	return &Validator{parser: p}
}

// ValidatePath validates source in the language detected from path.
func (v *Validator) ValidatePath(ctx context.Context, path, source string) error {
	return v.Validate(ctx, v.parser.registry.Detect(path), source)
}

// Validate returns nil when source is syntactically valid for language.
// Languages without a grammar fall back to a bracket balance check; unknown
// languages are accepted.
func (v *Validator) Validate(ctx context.Context, language, source string) error {
	if language == "" {
		return nil
	}
	if _, known := v.parser.registry.Spec(language); !known {
		return nil
	}

	errs, ok, err := v.parser.SyntaxErrors(ctx, language, source)
	if err != nil {
		return err
	}
	if !ok {
		return CheckBalance(source)
	}
	if len(errs) > 0 {
		first := errs[0]
		return fmt.Errorf("%s at line %d column %d (%d syntax errors)", first.Message(), first.Line, first.Column, len(errs))
	}
	return nil
}

// CheckBalance verifies that (), [] and {} nest correctly outside string
// literals and line comments.
func CheckBalance(source string) error {
	type open struct {
		ch   rune
		line int
	}
	var stack []open
	closing := map[rune]rune{')': '(', ']': '[', '}': '{'}
	line := 1
	var quote rune
	escaped := false
	runes := []rune(source)

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\n' {
			line++
		}
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote || (ch == '\n' && quote != '`'):
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '/':
			if i+1 < len(runes) && runes[i+1] == '/' {
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
				if i < len(runes) {
					line++
				}
			}
		case '(', '[', '{':
			stack = append(stack, open{ch: ch, line: line})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != closing[ch] {
				return fmt.Errorf("unbalanced %q at line %d", ch, line)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Errorf("unclosed %q opened at line %d", top.ch, top.line)
	}
	return nil
}
