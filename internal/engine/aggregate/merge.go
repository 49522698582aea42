package aggregate

import (
	"sort"

	"coderefactor/internal/core/issue"
)

type dedupKey struct {
	line    int
	column  int
	rule    string
	message string
}

func keyOf(is issue.Issue) dedupKey {
	k := dedupKey{line: is.Location.StartLine, column: is.Location.StartColumn, rule: is.RuleID}
	if !is.Location.Known() {
		// Without a position only an identical message is a duplicate.
		k.message = is.Message
	}
	return k
}

// merge deduplicates candidates, sorts them into the canonical order and
// applies the cap. Among duplicates the better rank wins, then the earlier
// emission, so the kept issue does not depend on the generated ids.
func merge(candidates []candidate, maxIssues int) ([]issue.Issue, bool) {
	best := make(map[dedupKey]candidate, len(candidates))
	for _, c := range candidates {
		k := keyOf(c.issue)
		cur, ok := best[k]
		if !ok || c.rank.less(cur.rank) || (!cur.rank.less(c.rank) && c.seq < cur.seq) {
			best[k] = c
		}
	}

	out := make([]issue.Issue, 0, len(best))
	for _, c := range best {
		out = append(out, c.issue)
	}
	Sort(out)

	if maxIssues > 0 && len(out) > maxIssues {
		// The order puts the lowest severities, then the highest lines, last.
		return out[:maxIssues:maxIssues], true
	}
	return out, false
}

// Sort orders issues by severity descending, then position, then a
// deterministic tie-break.
func Sort(issues []issue.Issue) {
	sort.SliceStable(issues, func(i, j int) bool { return Less(issues[i], issues[j]) })
}

// Less is the strict total order used for results.
func Less(a, b issue.Issue) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if a.Location.StartLine != b.Location.StartLine {
		return a.Location.StartLine < b.Location.StartLine
	}
	if a.Location.StartColumn != b.Location.StartColumn {
		return a.Location.StartColumn < b.Location.StartColumn
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	if a.Location.EndLine != b.Location.EndLine {
		return a.Location.EndLine < b.Location.EndLine
	}
	if a.Location.EndColumn != b.Location.EndColumn {
		return a.Location.EndColumn < b.Location.EndColumn
	}
	if a.Location.File != b.Location.File {
		return a.Location.File < b.Location.File
	}
	return a.ID < b.ID
}
