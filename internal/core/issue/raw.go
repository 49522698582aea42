package issue

// Adapter-declared tags recognised by the default fixability predicate.
const (
	TagCodeFix     = "CodeFix"
	TagFix         = "Fix"
	TagUnnecessary = "Unnecessary"
	TagLLM         = "LLM"
	TagNoFix       = "NoFix"
)

// RawLocation carries positions in the producing adapter's native base.
type RawLocation struct {
	File      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// RawDiagnostic is an adapter's output before normalization. A nil Location
// marks a malformed diagnostic.
type RawDiagnostic struct {
	RuleID      string
	Severity    string
	Category    string
	Message     string
	Description string
	Location    *RawLocation
	Tags        []string
	Edit        *TextEdit
}

// HasTag reports whether tag was declared on the diagnostic.
func (d RawDiagnostic) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Unit is one compilation unit handed to adapters.
type Unit struct {
	Path     string
	Language string
	Source   string
}

// Project describes a multi-file analysis target.
type Project struct {
	Root  string
	Files []string
}
