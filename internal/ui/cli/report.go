package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/data/history"
	"coderefactor/internal/engine/aggregate"
	"coderefactor/internal/engine/apply"
)

type styles struct {
	title    lipgloss.Style
	critical lipgloss.Style
	err      lipgloss.Style
	warning  lipgloss.Style
	info     lipgloss.Style
	success  lipgloss.Style
	muted    lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title:    lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true),
		critical: lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
		info:     lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true),
	}
}

func (s styles) severity(sev issue.Severity) lipgloss.Style {
	switch sev {
	case issue.SeverityCritical:
		return s.critical
	case issue.SeverityError:
		return s.err
	case issue.SeverityWarning:
		return s.warning
	}
	return s.info
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderResult prints one unit. Issues keep their aggregated order and are
// numbered so that fix --issue can refer to them by index.
func renderResult(w io.Writer, st styles, res issue.AnalysisResult) {
	fmt.Fprintln(w, st.title.Render(res.FilePath))
	if res.Err != nil {
		fmt.Fprintln(w, "  "+st.critical.Render("analysis failed: "+res.Err.Error()))
	}
	for i, is := range res.Issues {
		fix := ""
		if is.Fixable {
			fix = " " + st.success.Render("[fix:"+string(is.FixKind)+"]")
		}
		loc := "?"
		if is.Location.Known() {
			loc = fmt.Sprintf("%d:%d", is.Location.StartLine, is.Location.StartColumn)
		}
		fmt.Fprintf(w, "  %3d %-7s %-9s %s %s%s\n",
			i+1,
			loc,
			st.severity(is.Severity).Render(is.Severity.String()),
			st.muted.Render(is.Source+"/"+is.RuleID),
			is.Message,
			fix,
		)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s\n", st.warning.Render("adapter "+f.Adapter+" failed: "+f.Reason))
	}
	fmt.Fprintln(w, "  "+summaryLine(st, res))
}

func summaryLine(st styles, res issue.AnalysisResult) string {
	counts := res.CountBySeverity()
	parts := make([]string, 0, 4)
	for _, sev := range []issue.Severity{issue.SeverityCritical, issue.SeverityError, issue.SeverityWarning, issue.SeverityInfo} {
		if counts[sev] > 0 {
			parts = append(parts, st.severity(sev).Render(fmt.Sprintf("%d %s", counts[sev], sev)))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, st.success.Render("no issues"))
	}
	line := strings.Join(parts, ", ")
	extra := make([]string, 0, 3)
	if n := len(res.FixableIssues()); n > 0 {
		extra = append(extra, fmt.Sprintf("%d fixable", n))
	}
	if res.Truncated {
		extra = append(extra, "truncated")
	}
	if res.Malformed > 0 {
		extra = append(extra, fmt.Sprintf("%d malformed diagnostics dropped", res.Malformed))
	}
	if len(extra) > 0 {
		line += st.muted.Render(" (" + strings.Join(extra, ", ") + ")")
	}
	return line
}

func renderProject(w io.Writer, st styles, res aggregate.ProjectResult) {
	for _, unit := range res.Results {
		if len(unit.Issues) == 0 && unit.Err == nil && len(unit.Failures) == 0 {
			continue
		}
		renderResult(w, st, unit)
	}
	fmt.Fprintf(w, "%s %d files, %d issues, %d failed in %s\n",
		st.title.Render("project"),
		len(res.Results),
		res.IssueCount(),
		len(res.FailedUnits()),
		res.Duration.Round(time.Millisecond),
	)
}

func renderCandidate(w io.Writer, st styles, cand issue.FixCandidate) {
	fmt.Fprintf(w, "%s %s (%s via %s)\n", st.title.Render("fix staged for"), cand.IssueID, cand.Provenance, cand.Producer)
	if cand.Rationale != "" {
		fmt.Fprintln(w, "  "+st.muted.Render(cand.Rationale))
	}
	region := apply.ChangedRegion(cand.PreImage, cand.PostImage)
	pre := strings.Split(cand.PreImage, "\n")
	post := strings.Split(cand.PostImage, "\n")
	tail := len(pre) - region.End
	for i := region.Start; i <= region.End && i <= len(pre); i++ {
		fmt.Fprintln(w, st.err.Render("- "+pre[i-1]))
	}
	for i := region.Start; i <= len(post)-tail; i++ {
		fmt.Fprintln(w, st.success.Render("+ "+post[i-1]))
	}
}

func renderCommit(w io.Writer, st styles, rec apply.Commit) {
	fmt.Fprintf(w, "%s %s lines %d-%d\n", st.success.Render("committed"), rec.FilePath, rec.Region.Start, rec.Region.End)
	if len(rec.Rejected) > 0 {
		fmt.Fprintln(w, "  "+st.warning.Render("rejected overlapping fixes: "+strings.Join(rec.Rejected, ", ")))
	}
}

func renderTrend(w io.Writer, st styles, report history.TrendReport) {
	fmt.Fprintf(w, "%s %s (%d runs, window %s)\n", st.title.Render("history"), report.FilePath, report.RunCount, report.Window)
	for _, p := range report.Points {
		delta := fmt.Sprintf("%+d", p.DeltaIssues)
		switch {
		case p.DeltaIssues > 0:
			delta = st.err.Render(delta)
		case p.DeltaIssues < 0:
			delta = st.success.Render(delta)
		}
		changed := ""
		if p.SourceChanged {
			changed = st.muted.Render(" source changed")
		}
		fmt.Fprintf(w, "  #%-4d %s  %3d issues %s  avg %.2f%s\n",
			p.RunID, p.Timestamp.Format("2006-01-02 15:04:05"), p.IssueCount, delta, p.AvgIssues, changed)
	}
}
