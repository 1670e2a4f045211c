package dataset

import (
	"fmt"
	"strings"

	"github.com/fmuoria/resume-screener/internal/table"
	"github.com/fmuoria/resume-screener/internal/tree"
)

// BuildSummary left-joins prospects to applicants on the candidate code and
// the result to job postings on the job code, then projects SummaryColumns.
// The result has exactly one row per prospect. prospects is modified: it
// gains the normalised codigo_profissional key column.
func BuildSummary(prospects, applicants, jobs *table.Frame) (*table.Frame, error) {
	prospects.AddColumn(ColApplicantCode)
	for i := 0; i < prospects.Len(); i++ {
		code := prospects.Value(i, ColCandidateCode)
		if code.IsNull() {
			continue
		}
		prospects.Set(i, ColApplicantCode, tree.Str(code.Key()))
	}

	merged, err := table.LeftJoin(prospects, applicants, ColApplicantCode, ColApplicantCode)
	if err != nil {
		return nil, fmt.Errorf("join applicants: %w", err)
	}

	merged, err = table.LeftJoin(merged, jobs, ColJobCode, ColPostingID)
	if err != nil {
		return nil, fmt.Errorf("join jobs: %w", err)
	}

	summary, err := merged.Project(SummaryColumns...)
	if err != nil {
		return nil, fmt.Errorf("summary projection: %w", err)
	}
	return summary, nil
}

// Filter narrows a summary to rows matching a job title and/or recruiter.
// Empty criteria match everything.
type Filter struct {
	JobTitle  string `json:"job_title"`
	Recruiter string `json:"recruiter"`
}

// IsEmpty reports whether no criterion is set.
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.JobTitle) == "" && strings.TrimSpace(f.Recruiter) == ""
}

// Apply returns the matching rows of summary.
func (f Filter) Apply(summary *table.Frame) *table.Frame {
	title := strings.TrimSpace(f.JobTitle)
	recruiter := strings.TrimSpace(f.Recruiter)
	return summary.Filter(func(r table.Record) bool {
		if title != "" && r.Text(ColJobTitle) != title {
			return false
		}
		if recruiter != "" && r.Text(ColRecruiter) != recruiter {
			return false
		}
		return true
	})
}

// JobDescription assembles the posting text of a summary row for scoring.
func JobDescription(r table.Record) string {
	var sb strings.Builder
	for _, c := range JobDescriptionColumns {
		text := strings.TrimSpace(r.Text(c))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String()
}
