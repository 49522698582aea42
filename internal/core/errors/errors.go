// Package errors defines the coded domain errors shared across the pipeline.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported    ErrorCode = "NOT_SUPPORTED"

	CodeAdapterFailure      ErrorCode = "ADAPTER_FAILURE"
	CodeMalformedDiagnostic ErrorCode = "MALFORMED_DIAGNOSTIC"
	CodeFixUnavailable      ErrorCode = "FIX_UNAVAILABLE"
	CodeInvalidFix          ErrorCode = "INVALID_FIX"
	CodeStaleFix            ErrorCode = "STALE_FIX"
	CodeAggregationFailure  ErrorCode = "AGGREGATION_FAILURE"
)

// Context keys.
const (
	CtxPath    = "path"
	CtxAdapter = "adapter"
	CtxIssueID = "issue_id"
	CtxRuleID  = "rule_id"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

// Error renders "[CODE] message: cause {k=v ...}" with context keys sorted.
func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Message != "" {
		b.WriteString(" " + e.Message)
	}
	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(":")
		}
		fmt.Fprintf(&b, " %v", e.Err)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		b.WriteString(" {" + strings.Join(parts, " ") + "}")
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext returns err with key set. A DomainError is copied, never
// mutated. Other errors are wrapped, keeping the code of any DomainError in
// their chain or CodeInternal otherwise.
func AddContext(err error, key string, value any) error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DomainError); ok {
		clone := *de
		clone.Context = make(map[string]any, len(de.Context)+1)
		for k, v := range de.Context {
			clone.Context[k] = v
		}
		clone.Context[key] = value
		return &clone
	}
	return &DomainError{
		Code:    CodeOf(err),
		Err:     err,
		Context: map[string]any{key: value},
	}
}

// ContextValue returns the outermost value recorded for key.
func ContextValue(err error, key string) (any, bool) {
	for err != nil {
		if de, ok := err.(*DomainError); ok {
			if v, ok := de.Context[key]; ok {
				return v, true
			}
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// IsCode reports whether the outermost DomainError in err's chain has code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

// CodeOf returns the outermost DomainError code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
