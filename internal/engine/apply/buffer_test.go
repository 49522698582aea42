package apply

import (
	"testing"

	"coderefactor/internal/core/issue"
)

func TestChangedRegion(t *testing.T) {
	cases := []struct {
		name      string
		pre, post string
		want      issue.LineRange
	}{
		{"replace", "a\nb\nc\n", "a\nB\nc\n", issue.LineRange{Start: 2, End: 2}},
		{"delete", "a\nb\nc\n", "a\nc\n", issue.LineRange{Start: 2, End: 2}},
		{"insert", "a\nc\n", "a\nb\nc\n", issue.LineRange{Start: 1, End: 2}},
		{"append newline", "x = 1", "x = 1\n", issue.LineRange{Start: 1, End: 1}},
		{"first line", "a\nb\n", "A\nb\n", issue.LineRange{Start: 1, End: 1}},
		{"span", "a\nb\nc\nd\n", "a\nx\ny\nd\n", issue.LineRange{Start: 2, End: 3}},
	}
	for _, tc := range cases {
		if got := ChangedRegion(tc.pre, tc.post); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
	if !ChangedRegion("same", "same").Empty() {
		t.Fatal("expected identical texts to produce an empty region")
	}
}

func TestBufferEditBumpsVersion(t *testing.T) {
	buf := NewBuffer("", "a")
	if buf.Path() != issue.BufferPath {
		t.Fatalf("expected buffer sentinel path, got %q", buf.Path())
	}
	before := buf.Digest()
	if v := buf.Edit("a"); v != 1 {
		t.Fatalf("expected no-op edit to keep version 1, got %d", v)
	}
	if v := buf.Edit("b"); v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}
	if buf.Digest() == before {
		t.Fatal("expected digest to change with the text")
	}
}
