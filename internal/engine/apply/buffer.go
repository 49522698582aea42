// Package apply commits staged fix candidates to in-memory buffers and rolls
// them back.
package apply

import (
	"strings"
	"sync"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/shared/util"
)

// Buffer is the single-writer text of one open file. Version increases on
// every change, whether it comes from an edit, a commit or a rollback.
type Buffer struct {
	mu      sync.Mutex
	path    string
	text    string
	version uint64
	undo    []Commit
}

func NewBuffer(path, text string) *Buffer {
	if path == "" {
		path = issue.BufferPath
	}
	return &Buffer{path: path, text: text, version: 1}
}

func (b *Buffer) Path() string { return b.path }

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *Buffer) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Digest fingerprints the current text.
func (b *Buffer) Digest() string {
	return util.Digest(b.Text())
}

// Edit replaces the text outside the fix pipeline, as a user keystroke would.
// Commits recorded before the edit can no longer be rolled back cleanly.
func (b *Buffer) Edit(text string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if text != b.text {
		b.text = text
		b.version++
	}
	return b.version
}

// History returns the commits that can still be rolled back, oldest first.
func (b *Buffer) History() []Commit {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Commit, len(b.undo))
	copy(out, b.undo)
	return out
}

// ChangedRegion returns the pre-image lines that differ between pre and post.
// A pure insertion reports the lines around the insertion point. Identical
// texts yield an empty range.
func ChangedRegion(pre, post string) issue.LineRange {
	if pre == post {
		return issue.LineRange{Start: 1, End: 0}
	}
	a := strings.Split(pre, "\n")
	b := strings.Split(post, "\n")

	head := 0
	for head < len(a) && head < len(b) && a[head] == b[head] {
		head++
	}
	tail := 0
	for tail < len(a)-head && tail < len(b)-head && a[len(a)-1-tail] == b[len(b)-1-tail] {
		tail++
	}

	start, end := head+1, len(a)-tail
	if end < start {
		start = max(head, 1)
		end = max(start, min(head+1, len(a)))
	}
	return issue.LineRange{Start: start, End: end}
}
