package adapters

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"coderefactor/internal/core/issue"
)

const byteOrderMark = "\uFEFF"

// utf16Offset maps an index in UTF-16 code units onto a byte offset of text.
// It fails past the end and inside a surrogate pair.
func utf16Offset(text string, index int) (int, bool) {
	if index < 0 {
		return 0, false
	}
	units := 0
	for i, r := range text {
		if units == index {
			return i, true
		}
		if units > index {
			return 0, false
		}
		units += utf16.RuneLen(r)
	}
	if units == index {
		return len(text), true
	}
	return 0, false
}

// rebaseEdits rewrites UTF-16 edit ranges as byte offsets of source. ESLint
// counts from after a leading byte order mark. An edit that cannot be mapped
// is dropped along with its CodeFix tag.
func rebaseEdits(diags []issue.RawDiagnostic, source string) {
	body := strings.TrimPrefix(source, byteOrderMark)
	shift := len(source) - len(body)
	for i := range diags {
		e := diags[i].Edit
		if e == nil {
			continue
		}
		start, okStart := utf16Offset(body, e.Start)
		end, okEnd := utf16Offset(body, e.End)
		if !okStart || !okEnd || end < start {
			dropEdit(&diags[i])
			continue
		}
		diags[i].Edit = &issue.TextEdit{Start: start + shift, End: end + shift, Text: e.Text}
	}
}

// rebaseProjectEdits reads each file that carries edits once and rebases its
// diagnostics against the file content.
func rebaseProjectEdits(root string, diags []issue.RawDiagnostic) {
	byFile := make(map[string][]int)
	for i, d := range diags {
		if d.Edit == nil {
			continue
		}
		if d.Location == nil || d.Location.File == "" {
			dropEdit(&diags[i])
			continue
		}
		byFile[d.Location.File] = append(byFile[d.Location.File], i)
	}
	for file, idx := range byFile {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(file)))
		subset := make([]issue.RawDiagnostic, len(idx))
		for j, i := range idx {
			subset[j] = diags[i]
		}
		if err != nil {
			for j := range subset {
				dropEdit(&subset[j])
			}
		} else {
			rebaseEdits(subset, string(data))
		}
		for j, i := range idx {
			diags[i] = subset[j]
		}
	}
}

func dropEdit(d *issue.RawDiagnostic) {
	d.Edit = nil
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		if t != issue.TagCodeFix {
			tags = append(tags, t)
		}
	}
	d.Tags = tags
}
