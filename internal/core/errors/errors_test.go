package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Format(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"new", New(CodeNotFound, "resource not found"), "[NOT_FOUND] resource not found"},
		{"wrap", Wrap(errors.New("disk full"), CodeInternal, "save failed"), "[INTERNAL_ERROR] save failed: disk full"},
		{"context sorted", AddContext(AddContext(New(CodeStaleFix, "buffer changed"), CtxPath, "a.py"), CtxIssueID, "i1"), "[STALE_FIX] buffer changed {issue_id=i1 path=a.py}"},
		{"foreign with context", AddContext(errors.New("boom"), CtxAdapter, "pylint"), "[INTERNAL_ERROR] boom {adapter=pylint}"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestIsCodeAndCodeOf(t *testing.T) {
	err := New(CodeValidationError, "invalid input")
	if !IsCode(err, CodeValidationError) || IsCode(err, CodeNotFound) {
		t.Fatalf("unexpected IsCode results for %v", err)
	}

	wrapped := fmt.Errorf("request fix: %w", New(CodeFixUnavailable, "no fixer"))
	if !IsCode(wrapped, CodeFixUnavailable) {
		t.Fatal("expected code to survive fmt wrapping")
	}
	withCtx := AddContext(wrapped, CtxIssueID, "abc")
	if CodeOf(withCtx) != CodeFixUnavailable {
		t.Fatalf("expected context wrapper to keep FIX_UNAVAILABLE, got %s", CodeOf(withCtx))
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatal("expected foreign errors to map to INTERNAL_ERROR")
	}
}

func TestAddContext_DoesNotMutate(t *testing.T) {
	base := New(CodeStaleFix, "buffer changed")
	first := AddContext(base, CtxPath, "a.py")
	_ = AddContext(first, CtxIssueID, "i1")

	if got := base.Error(); got != "[STALE_FIX] buffer changed" {
		t.Fatalf("base error mutated: %q", got)
	}
	if _, ok := ContextValue(first, CtxIssueID); ok {
		t.Fatal("expected first error to lack issue_id")
	}
	if v, ok := ContextValue(first, CtxPath); !ok || v != "a.py" {
		t.Fatalf("expected path context, got %v %v", v, ok)
	}
	if AddContext(nil, CtxPath, "x") != nil {
		t.Fatal("expected nil in, nil out")
	}
}
