package issue

import "time"

type Provenance string

const (
	ProvenanceDeterministic Provenance = "deterministic"
	ProvenanceSuggested     Provenance = "suggested"
)

// FixState tracks one fix request through the broker.
type FixState uint8

const (
	FixRequested FixState = iota
	FixCandidateObtained
	FixValidated
	FixStaged
	FixCommitted
	FixRejected
)

func (s FixState) String() string {
	switch s {
	case FixRequested:
		return "requested"
	case FixCandidateObtained:
		return "candidate_obtained"
	case FixValidated:
		return "validated"
	case FixStaged:
		return "staged"
	case FixCommitted:
		return "committed"
	case FixRejected:
		return "rejected"
	}
	return "unknown"
}

// FixCandidate is a whole-buffer replacement for one issue. PreImage is the
// exact buffer text captured when the fix was requested.
type FixCandidate struct {
	ID         string     `json:"id"`
	IssueID    string     `json:"issue_id"`
	FilePath   string     `json:"file_path"`
	Location   Location   `json:"location"`
	PreImage   string     `json:"pre_image"`
	PostImage  string     `json:"post_image"`
	Rationale  string     `json:"rationale"`
	Provenance Provenance `json:"provenance"`
	Producer   string     `json:"producer"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LineRange is a 1-based inclusive span of lines.
type LineRange struct {
	Start int
	End   int
}

// Overlaps reports whether the two ranges share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Empty reports whether the range covers no lines.
func (r LineRange) Empty() bool {
	return r.End < r.Start
}
