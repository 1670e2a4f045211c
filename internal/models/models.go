package models

import (
	"time"

	"github.com/fmuoria/resume-screener/internal/tree"
)

// Criterion is one rated line of a generated report, e.g. "Experience: 4/5".
type Criterion struct {
	Label string  `json:"label,omitempty"`
	Score float64 `json:"score"` // 0-5
}

// Scores holds every "n/5" rating found in a report and their mean.
type Scores struct {
	Criteria []Criterion `json:"criteria"`
	Mean     *float64    `json:"mean"` // nil when the report has no ratings
}

// Evaluation is the assessment of one résumé against one job description.
// A failed embedding call leaves Similarity nil; a failed generative call
// puts the error text in Report.
type Evaluation struct {
	Similarity        *float64 `json:"similarity"`         // 0-1
	SimilarityPercent *float64 `json:"similarity_percent"` // 0-100
	Report            string   `json:"report"`
	Scores            Scores   `json:"scores"`
	Errors            []string `json:"errors,omitempty"`
}

// EvaluateRequest is an uploaded résumé plus the job description to compare
// it against.
type EvaluateRequest struct {
	FileName       string `json:"file_name"`
	Data           []byte `json:"-"`
	JobDescription string `json:"job_description"`
}

// EvaluateResponse reports the extracted text and its evaluation.
// ExtractionMessage is set when the document could not be read.
type EvaluateResponse struct {
	FileName          string     `json:"file_name"`
	ExtractedText     string     `json:"extracted_text"`
	ExtractionMessage string     `json:"extraction_message,omitempty"`
	Evaluation        Evaluation `json:"evaluation"`
	Timestamp         string     `json:"timestamp"`
}

// DatasetResponse is a filtered page of the summary table. Each row is an
// object whose keys follow Columns.
type DatasetResponse struct {
	JobTitle  string       `json:"job_title,omitempty"`
	Recruiter string       `json:"recruiter,omitempty"`
	Columns   []string     `json:"columns"`
	Rows      []tree.Value `json:"rows"`
	Total     int          `json:"total"`
}

// OptionsResponse lists the values the dataset can be filtered by.
type OptionsResponse struct {
	JobTitles  []string `json:"job_titles"`
	Recruiters []string `json:"recruiters"`
}

// ScoreRequest asks for the filtered rows to be evaluated. Limit <= 0 means
// the configured maximum.
type ScoreRequest struct {
	JobTitle  string `json:"job_title"`
	Recruiter string `json:"recruiter"`
	Limit     int    `json:"limit"`
}

// RowScore is the evaluation of one summary row.
type RowScore struct {
	Row           int        `json:"row"`
	Name          string     `json:"name"`
	CandidateCode string     `json:"candidate_code"`
	JobCode       string     `json:"job_code"`
	JobTitle      string     `json:"job_title"`
	Evaluation    Evaluation `json:"evaluation"`
	Rank          int        `json:"rank"`
}

// ScoreResponse collects a bulk scoring run, ranked by mean score.
type ScoreResponse struct {
	RunID     string     `json:"run_id"`
	JobTitle  string     `json:"job_title,omitempty"`
	Recruiter string     `json:"recruiter,omitempty"`
	Matched   int        `json:"matched"`
	Rows      []RowScore `json:"rows"`
	Timestamp string     `json:"timestamp"`
}

// StatusResponse describes the summary cache.
type StatusResponse struct {
	Cached      bool       `json:"cached"`
	Path        string     `json:"path"`
	BuiltAt     *time.Time `json:"built_at,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Rows        int        `json:"rows"`
	Stale       bool       `json:"stale"`
	Builds      int64      `json:"builds"`
}
