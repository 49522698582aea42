// Package secrets finds credentials committed to source text.
package secrets

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Finding is one suspected secret. Line and Column are 1-based; EndColumn is
// exclusive.
type Finding struct {
	Kind       string
	Severity   string
	Value      string
	Entropy    float64
	Confidence float64
	Line       int
	Column     int
	EndColumn  int
}

type PatternConfig struct {
	Name     string
	Regex    string
	Severity string
}

type Config struct {
	EntropyThreshold float64
	MinTokenLength   int
	Patterns         []PatternConfig
}

const (
	defaultEntropyThreshold = 4.0
	defaultMinTokenLength   = 20

	kindAssignment  = "sensitive-assignment"
	kindHighEntropy = "high-entropy-string"
)

var builtinPatterns = []PatternConfig{
	{Name: "aws-access-key-id", Severity: "high", Regex: `\bAKIA[0-9A-Z]{16}\b`},
	{Name: "github-pat", Severity: "high", Regex: `\bghp_[A-Za-z0-9]{36}\b`},
	{Name: "github-fine-grained-pat", Severity: "high", Regex: `\bgithub_pat_[A-Za-z0-9_]{82}\b`},
	{Name: "stripe-live-secret", Severity: "high", Regex: `\bsk_live_[A-Za-z0-9]{16,}\b`},
	{Name: "slack-token", Severity: "high", Regex: `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`},
	{Name: "anthropic-api-key", Severity: "high", Regex: `\bsk-ant-[A-Za-z0-9_-]{20,}\b`},
	{Name: "private-key-block", Severity: "critical", Regex: `-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`},
}

var (
	sensitiveNameRE = regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|api[_-]?key|token|auth[_-]?token|access[_-]?key|private[_-]?key|client[_-]?secret)\b`)
	quotedRE        = regexp.MustCompile(`"([^"\r\n]{4,})"|'([^'\r\n]{4,})'`)
	quotedTokenRE   = regexp.MustCompile(`"([A-Za-z0-9_\-+=:/.]{12,})"|'([A-Za-z0-9_\-+=:/.]{12,})'`)

	placeholders = []string{"example", "sample", "dummy", "placeholder", "changeme", "notasecret", "test", "xxxx"}
)

// Free-floating high-entropy tokens are only reported in files that commonly
// hold configuration or credentials.
var configExtensions = map[string]bool{
	".env": true, ".ini": true, ".cfg": true, ".conf": true, ".properties": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".pem": true, ".key": true,
}

func isConfigFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasPrefix(base, ".env") || configExtensions[filepath.Ext(base)]
}

type rule struct {
	name     string
	severity string
	re       *regexp.Regexp
}

// Detector is safe for concurrent use once built.
type Detector struct {
	entropyThreshold float64
	minTokenLength   int
	rules            []rule
}

func NewDetector(cfg Config) (*Detector, error) {
	if cfg.EntropyThreshold <= 0 {
		cfg.EntropyThreshold = defaultEntropyThreshold
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = defaultMinTokenLength
	}
	all := make([]PatternConfig, 0, len(builtinPatterns)+len(cfg.Patterns))
	all = append(all, builtinPatterns...)
	all = append(all, cfg.Patterns...)

	rules := make([]rule, 0, len(all))
	for _, p := range all {
		r, err := compileRule(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return &Detector{
		entropyThreshold: cfg.EntropyThreshold,
		minTokenLength:   cfg.MinTokenLength,
		rules:            rules,
	}, nil
}

func compileRule(p PatternConfig) (rule, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return rule{}, fmt.Errorf("secret pattern name must not be empty")
	}
	expr := strings.TrimSpace(p.Regex)
	if expr == "" {
		return rule{}, fmt.Errorf("secret pattern %q regex must not be empty", name)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return rule{}, fmt.Errorf("compile secret pattern %q: %w", name, err)
	}
	severity := strings.ToLower(strings.TrimSpace(p.Severity))
	if severity == "" {
		severity = "medium"
	}
	return rule{name: name, severity: severity, re: re}, nil
}

type findingKey struct {
	line, col int
	value     string
}

// Detect scans source line by line. Each position and value is reported once,
// keeping the most confident classification. Results are ordered by position.
func (d *Detector) Detect(path, source string) []Finding {
	if source == "" {
		return nil
	}
	found := make(map[findingKey]Finding)
	add := func(f Finding) {
		f.EndColumn = f.Column + len(f.Value)
		key := findingKey{f.Line, f.Column, f.Value}
		if prev, ok := found[key]; ok && prev.Confidence >= f.Confidence {
			return
		}
		found[key] = f
	}

	scanEntropy := isConfigFile(path)
	for i, line := range strings.Split(source, "\n") {
		lineNo := i + 1
		d.scanRules(lineNo, line, add)
		if sensitiveNameRE.MatchString(line) {
			d.scanAssignments(lineNo, line, add)
		}
		if scanEntropy {
			d.scanEntropy(lineNo, line, add)
		}
	}
	if len(found) == 0 {
		return nil
	}

	out := make([]Finding, 0, len(found))
	for _, f := range found {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (d *Detector) scanRules(lineNo int, line string, add func(Finding)) {
	for _, r := range d.rules {
		for _, loc := range r.re.FindAllStringIndex(line, -1) {
			value := line[loc[0]:loc[1]]
			if isPlaceholder(value) {
				continue
			}
			add(Finding{
				Kind:       r.name,
				Severity:   r.severity,
				Value:      value,
				Entropy:    entropyBits(value),
				Confidence: 0.99,
				Line:       lineNo,
				Column:     loc[0] + 1,
			})
		}
	}
}

// scanAssignments reports quoted values on lines that name a credential.
func (d *Detector) scanAssignments(lineNo int, line string, add func(Finding)) {
	for _, m := range quotedRE.FindAllStringSubmatchIndex(line, -1) {
		start, end, ok := quotedGroup(m)
		if !ok {
			continue
		}
		value := line[start:end]
		if len(value) < d.minTokenLength || isPlaceholder(value) {
			continue
		}
		bits := entropyBits(value)
		if bits < d.entropyThreshold*0.8 {
			continue
		}
		confidence := 0.70
		if bits >= d.entropyThreshold {
			confidence = 0.85
		}
		add(Finding{
			Kind:       kindAssignment,
			Severity:   "medium",
			Value:      value,
			Entropy:    bits,
			Confidence: confidence,
			Line:       lineNo,
			Column:     start + 1,
		})
	}
}

func (d *Detector) scanEntropy(lineNo int, line string, add func(Finding)) {
	for _, m := range quotedTokenRE.FindAllStringSubmatchIndex(line, -1) {
		start, end, ok := quotedGroup(m)
		if !ok {
			continue
		}
		value := line[start:end]
		if len(value) < d.minTokenLength || isPlaceholder(value) || !mixesLettersAndDigits(value) {
			continue
		}
		bits := entropyBits(value)
		if bits < d.entropyThreshold {
			continue
		}
		add(Finding{
			Kind:       kindHighEntropy,
			Severity:   "low",
			Value:      value,
			Entropy:    bits,
			Confidence: 0.6,
			Line:       lineNo,
			Column:     start + 1,
		})
	}
}

// quotedGroup returns the bounds of whichever quote style matched.
func quotedGroup(m []int) (int, int, bool) {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 && m[i+1] >= 0 {
			return m[i], m[i+1], true
		}
	}
	return 0, 0, false
}

func mixesLettersAndDigits(value string) bool {
	var letter, digit bool
	for _, r := range value {
		letter = letter || unicode.IsLetter(r)
		digit = digit || unicode.IsDigit(r)
		if letter && digit {
			return true
		}
	}
	return false
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// entropyBits is the Shannon entropy of value in bits per rune.
func entropyBits(value string) float64 {
	runes := []rune(value)
	if len(runes) == 0 {
		return 0
	}
	freq := make(map[rune]int, len(runes))
	for _, r := range runes {
		freq[r]++
	}
	n := float64(len(runes))
	bits := 0.0
	for _, c := range freq {
		p := float64(c) / n
		bits -= p * math.Log2(p)
	}
	return bits
}

// MaskValue keeps at most the first and last four bytes of a secret.
func MaskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}
