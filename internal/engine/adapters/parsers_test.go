package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderefactor/internal/core/issue"
)

func keepAll(p string) (string, bool) { return p, true }

func TestParsePylint(t *testing.T) {
	out := `[
  {"type":"convention","path":"a.py","line":1,"column":0,"endLine":1,"endColumn":5,"symbol":"trailing-whitespace","message":"Trailing whitespace","message-id":"C0303"},
  {"type":"error","path":"a.py","line":0,"column":0,"symbol":"syntax-error","message":"parsing failed","message-id":"E0001"},
  {"type":"refactor","path":"a.py","line":4,"column":4,"symbol":"too-few-public-methods","message":"Too few public methods","message-id":"R0903"}
]`
	diags, err := parsePylint([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 3)

	assert.Equal(t, &issue.RawLocation{File: "a.py", Line: 1, Column: 0, EndLine: 1, EndColumn: 5}, diags[0].Location)
	assert.Equal(t, []string{issue.TagCodeFix}, diags[0].Tags)
	assert.Nil(t, diags[1].Location, "line 0 has no usable position")
	assert.Equal(t, []string{issue.TagLLM}, diags[2].Tags)
	assert.Contains(t, diags[2].Description, "too-few-public-methods")
}

func TestParseFlake8(t *testing.T) {
	out := "a.py:1:6: W291 trailing whitespace\r\n" +
		"a.py:2:1: E999 SyntaxError: invalid syntax\n" +
		"garbage line\n" +
		"a.py:3:80: E501 line too long (88 > 79 characters)\n"
	diags, err := parseFlake8([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 3)

	assert.Equal(t, "W291", diags[0].RuleID)
	assert.Equal(t, "warning", diags[0].Severity)
	assert.Equal(t, []string{issue.TagCodeFix}, diags[0].Tags)
	assert.Equal(t, "error", diags[1].Severity)
	assert.Nil(t, diags[1].Tags)
	assert.Equal(t, []string{issue.TagLLM}, diags[2].Tags)
	assert.Equal(t, 80, diags[2].Location.Column)
}

func TestParseMypy(t *testing.T) {
	out := "a.py:3:5: error: Incompatible types in assignment [assignment]\n" +
		"a.py:4: note: See https://mypy.readthedocs.io\n"
	diags, err := parseMypy([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "assignment", diags[0].RuleID)
	assert.Equal(t, "Incompatible types in assignment", diags[0].Message)
	assert.Equal(t, 5, diags[0].Location.Column)
	assert.Equal(t, "mypy-note", diags[1].RuleID)
	assert.Equal(t, 1, diags[1].Location.Column)
}

func TestParseBandit(t *testing.T) {
	out := `{"errors":[],"results":[{"filename":"a.py","test_id":"B602","test_name":"subprocess_popen_with_shell_equals_true","issue_severity":"HIGH","issue_confidence":"HIGH","issue_text":"subprocess call with shell=True","line_number":3,"col_offset":0,"end_col_offset":30,"line_range":[3,4],"more_info":"https://bandit.readthedocs.io/b602"}]}`
	diags, err := parseBandit([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, "B602", d.RuleID)
	assert.Equal(t, "HIGH", d.Severity)
	assert.Equal(t, &issue.RawLocation{File: "a.py", Line: 3, Column: 0, EndLine: 4, EndColumn: 30}, d.Location)
	assert.Contains(t, d.Description, "confidence high")
}

func TestParseESLint(t *testing.T) {
	out := `[{"filePath":"<text>","messages":[
  {"ruleId":"semi","severity":2,"message":"Missing semicolon.","line":1,"column":10,"endLine":1,"endColumn":11,"fix":{"range":[9,9],"text":";"}},
  {"ruleId":null,"severity":2,"message":"Parsing error: Unexpected token","line":2,"column":3,"fatal":true},
  {"ruleId":"no-unused-vars","severity":1,"message":"'y' is defined but never used.","line":3,"column":5}
]}]`
	diags, err := parseESLint([]byte(out), unitPathMapper("a.js"))
	require.NoError(t, err)
	require.Len(t, diags, 3)

	assert.Equal(t, "2", diags[0].Severity)
	assert.Equal(t, &issue.TextEdit{Start: 9, End: 9, Text: ";"}, diags[0].Edit)
	assert.Equal(t, []string{issue.TagCodeFix}, diags[0].Tags)
	assert.Equal(t, "eslint-parse", diags[1].RuleID)
	assert.Equal(t, "syntax", diags[1].Category)
	assert.Equal(t, []string{issue.TagLLM}, diags[1].Tags)
	assert.Nil(t, diags[2].Tags)
}

func TestParseStylelint(t *testing.T) {
	out := `[{"source":"<input css 1>","warnings":[{"line":2,"column":3,"rule":"block-no-empty","severity":"error","text":"Unexpected empty block (block-no-empty)"}]}]`
	diags, err := parseStylelint([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "Unexpected empty block", diags[0].Message)
	assert.Equal(t, "error", diags[0].Severity)
}

func TestParseHTMLHint(t *testing.T) {
	out := `[{"file":"index.html","messages":[{"type":"error","message":"Tag must be paired","line":4,"col":1,"rule":{"id":"tag-pair","description":"Tag must be paired."}}]}]`
	diags, err := parseHTMLHint([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "tag-pair", diags[0].RuleID)
	assert.Equal(t, "Tag must be paired.", diags[0].Description)
	assert.Equal(t, 4, diags[0].Location.Line)
}

func TestParseVet(t *testing.T) {
	out := `# command-line-arguments
{
	"command-line-arguments": {
		"printf": [
			{
				"posn": "/tmp/x/main.go:7:2",
				"message": "fmt.Println call has possible Printf formatting directive %d"
			}
		],
		"unreachable": [
			{
				"posn": "/tmp/x/main.go:5:2",
				"end": "/tmp/x/main.go:5:9",
				"message": "unreachable code"
			}
		],
		"loopclosure": {"error": "analysis skipped"}
	}
}
`
	diags, err := parseVet([]byte(out), unitPathMapper("main.go"))
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "unreachable", diags[0].RuleID)
	assert.Equal(t, 9, diags[0].Location.EndColumn)
	assert.Equal(t, "printf", diags[1].RuleID)
}

func TestParseStaticcheck(t *testing.T) {
	out := `{"code":"SA4006","severity":"error","location":{"file":"main.go","line":4,"column":2},"end":{"file":"main.go","line":4,"column":8},"message":"this value of x is never used"}
{"code":"compile","severity":"error","location":{"file":"main.go","line":9,"column":1},"end":{"file":"","line":0,"column":0},"message":"expected declaration"}
`
	diags, err := parseStaticcheck([]byte(out), keepAll)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, 4, diags[0].Location.EndLine)
	assert.Equal(t, "syntax", diags[1].Category)
	assert.Zero(t, diags[1].Location.EndLine)
}

func TestParseGosec(t *testing.T) {
	out := `{"Issues":[
  {"severity":"HIGH","confidence":"HIGH","cwe":{"id":"798"},"rule_id":"G101","details":"Potential hardcoded credentials","file":"/tmp/x/main.go","line":"5","column":"2"},
  {"severity":"LOW","confidence":"HIGH","rule_id":"G104","details":"Errors unhandled","file":"/tmp/x/main.go","line":"8-10","column":"3"}
]}`
	diags, err := parseGosec([]byte(out), unitPathMapper("main.go"))
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "security", diags[0].Category)
	assert.Equal(t, "CWE-798 (confidence high)", diags[0].Description)
	assert.Equal(t, "", diags[1].Category)
	assert.Equal(t, 10, diags[1].Location.EndLine)
}
