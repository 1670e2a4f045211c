package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fmuoria/resume-screener/internal/cache"
	"github.com/fmuoria/resume-screener/internal/dataset"
	"github.com/fmuoria/resume-screener/internal/ingestion"
	"github.com/fmuoria/resume-screener/internal/models"
	"github.com/fmuoria/resume-screener/internal/table"
	"github.com/fmuoria/resume-screener/internal/tree"
)

var (
	// ErrNoFilter is returned when a dataset query names neither a job
	// title nor a recruiter.
	ErrNoFilter = errors.New("select at least one filter: job title or recruiter")
	// ErrMissingInput is returned when an evaluation lacks the résumé or
	// the job description.
	ErrMissingInput = errors.New("a résumé file and a job description are required")
)

// minScoringRate is the floor the limiter backs off to after quota errors.
const minScoringRate = 0.1

// ProgressCallback is called to report progress during processing
type ProgressCallback func(current, total int, message string)

// SummaryLoader produces the joined summary table.
type SummaryLoader interface {
	Load(ctx context.Context) (*table.Frame, error)
	Rebuild(ctx context.Context) (*table.Frame, error)
	Builds() int64
}

// CacheInspector reports on the stored summary.
type CacheInspector interface {
	Status(ctx context.Context) (cache.Meta, error)
}

// Evaluator scores one résumé against one job description.
type Evaluator interface {
	Evaluate(ctx context.Context, resume, jobDescription string) models.Evaluation
}

// Options tunes an Agent. Zero values leave uploads unsaved, scoring
// unthrottled and row counts unbounded.
type Options struct {
	FileHandler   *ingestion.FileHandler
	Cache         CacheInspector
	RatePerSecond float64
	Burst         int
	MaxRows       int
}

// Agent orchestrates résumé evaluation and the recruiting dataset
type Agent struct {
	loader     SummaryLoader
	evaluator  Evaluator
	files      *ingestion.FileHandler
	cache      CacheInspector
	limiter    *rate.Limiter
	maxRows    int
	mu         sync.RWMutex
	progressCb ProgressCallback
	logger     *slog.Logger
}

// New creates an agent over a summary loader and an evaluator
func New(loader SummaryLoader, evaluator Evaluator, opts Options) *Agent {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Agent{
		loader:    loader,
		evaluator: evaluator,
		files:     opts.FileHandler,
		cache:     opts.Cache,
		limiter:   rate.NewLimiter(limit, burst),
		maxRows:   opts.MaxRows,
		logger:    slog.With("component", "agent"),
	}
}

// SetProgressCallback sets the progress callback function
func (a *Agent) SetProgressCallback(cb ProgressCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progressCb = cb
}

// reportProgress calls the progress callback if set
func (a *Agent) reportProgress(current, total int, message string) {
	a.mu.RLock()
	cb := a.progressCb
	a.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// EvaluateUpload extracts the text of an uploaded résumé and evaluates it.
// An unreadable document is not an error: the response carries the
// extraction message and the evaluation runs on empty text.
func (a *Agent) EvaluateUpload(ctx context.Context, req models.EvaluateRequest) (models.EvaluateResponse, error) {
	if len(req.Data) == 0 || strings.TrimSpace(req.JobDescription) == "" {
		return models.EvaluateResponse{}, ErrMissingInput
	}

	if a.files != nil {
		if path, err := a.files.SaveUploadedFile(req.FileName, bytes.NewReader(req.Data)); err != nil {
			a.logger.WarnContext(ctx, "failed to keep uploaded résumé", "file", req.FileName, "error", err)
		} else {
			a.logger.DebugContext(ctx, "uploaded résumé stored", "path", path)
		}
	}

	extraction := ingestion.Extract(req.FileName, req.Data)
	if !extraction.OK() {
		a.logger.WarnContext(ctx, "text extraction failed", "file", req.FileName, "message", extraction.Message)
	}

	return models.EvaluateResponse{
		FileName:          req.FileName,
		ExtractedText:     extraction.Text,
		ExtractionMessage: extraction.Message,
		Evaluation:        a.evaluator.Evaluate(ctx, extraction.Text, req.JobDescription),
		Timestamp:         time.Now().Format(time.RFC3339),
	}, nil
}

// ClearUploads deletes the stored copies of uploaded résumés.
func (a *Agent) ClearUploads(ctx context.Context) error {
	if a.files == nil {
		return nil
	}
	if err := a.files.ClearUploads(); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "uploads cleared")
	return nil
}

// Dataset returns the summary rows matching filter, which must name a job
// title or a recruiter.
func (a *Agent) Dataset(ctx context.Context, filter dataset.Filter) (*table.Frame, error) {
	if filter.IsEmpty() {
		return nil, ErrNoFilter
	}
	summary, err := a.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	return filter.Apply(summary), nil
}

// DatasetResponse renders a filtered frame for the API.
func DatasetResponse(filter dataset.Filter, frame *table.Frame) models.DatasetResponse {
	rows := make([]tree.Value, frame.Len())
	for i, r := range frame.Records() {
		rows[i] = tree.Obj(r.Members()...)
	}
	return models.DatasetResponse{
		JobTitle:  filter.JobTitle,
		Recruiter: filter.Recruiter,
		Columns:   frame.Columns(),
		Rows:      rows,
		Total:     frame.Len(),
	}
}

// FilterOptions lists the distinct job titles and recruiters, sorted.
func (a *Agent) FilterOptions(ctx context.Context) (models.OptionsResponse, error) {
	summary, err := a.loader.Load(ctx)
	if err != nil {
		return models.OptionsResponse{}, fmt.Errorf("failed to load summary: %w", err)
	}

	titles := summary.Distinct(dataset.ColJobTitle)
	recruiters := summary.Distinct(dataset.ColRecruiter)
	sort.Strings(titles)
	sort.Strings(recruiters)

	return models.OptionsResponse{
		JobTitles:  nonNil(titles),
		Recruiters: nonNil(recruiters),
	}, nil
}

// Status describes the stored summary.
func (a *Agent) Status(ctx context.Context) (models.StatusResponse, error) {
	resp := models.StatusResponse{Builds: a.loader.Builds()}
	if a.cache == nil {
		return resp, nil
	}

	meta, err := a.cache.Status(ctx)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		resp.Path = meta.Path
		return resp, nil
	case err != nil:
		return resp, fmt.Errorf("failed to read cache status: %w", err)
	}

	builtAt := meta.BuiltAt
	resp.Cached = true
	resp.Path = meta.Path
	resp.BuiltAt = &builtAt
	resp.Fingerprint = meta.Fingerprint
	resp.Rows = meta.Rows
	resp.Stale = meta.Stale
	return resp, nil
}

// Reload rebuilds the summary from the local source files.
func (a *Agent) Reload(ctx context.Context) (models.StatusResponse, error) {
	summary, err := a.loader.Rebuild(ctx)
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("failed to rebuild summary: %w", err)
	}
	a.logger.InfoContext(ctx, "summary rebuilt", "rows", summary.Len())
	return a.Status(ctx)
}

// ScoreRows evaluates the filtered summary rows one at a time, each
// against the description of its own job posting. Calls are paced by the
// limiter and cancelled with ctx; results are ranked by mean rating.
func (a *Agent) ScoreRows(ctx context.Context, req models.ScoreRequest) (models.ScoreResponse, error) {
	_, resp, err := a.ScoreReport(ctx, req)
	return resp, err
}

// ScoreReport is ScoreRows that also returns every row the filter matched,
// scored or not, for callers that export both.
func (a *Agent) ScoreReport(ctx context.Context, req models.ScoreRequest) (*table.Frame, models.ScoreResponse, error) {
	filter := dataset.Filter{JobTitle: req.JobTitle, Recruiter: req.Recruiter}
	matchedRows, err := a.Dataset(ctx, filter)
	if err != nil {
		return nil, models.ScoreResponse{}, err
	}

	limit := req.Limit
	if a.maxRows > 0 && (limit <= 0 || limit > a.maxRows) {
		limit = a.maxRows
	}
	matched := matchedRows.Len()
	rows := matchedRows.Head(limit)

	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	logger.InfoContext(ctx, "scoring rows", "matched", matched, "scoring", rows.Len())

	results := make([]models.RowScore, 0, rows.Len())
	for i, r := range rows.Records() {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, models.ScoreResponse{}, fmt.Errorf("scoring cancelled after %d rows: %w", i, err)
		}

		name := r.Text(dataset.ColName)
		a.reportProgress(i, rows.Len(), fmt.Sprintf("Evaluating %s (%d/%d)", name, i+1, rows.Len()))

		eval := a.evaluator.Evaluate(ctx, r.Text(dataset.ColResumeText), dataset.JobDescription(r))
		if hitQuota(eval) {
			a.backOff(logger)
		}

		results = append(results, models.RowScore{
			Row:           r.Index(),
			Name:          name,
			CandidateCode: r.Text(dataset.ColCandidateCode),
			JobCode:       r.Text(dataset.ColJobCode),
			JobTitle:      r.Text(dataset.ColJobTitle),
			Evaluation:    eval,
		})
	}

	rankResults(results)
	a.reportProgress(rows.Len(), rows.Len(), "Processing complete!")

	return matchedRows, models.ScoreResponse{
		RunID:     runID,
		JobTitle:  req.JobTitle,
		Recruiter: req.Recruiter,
		Matched:   matched,
		Rows:      results,
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}

// backOff halves the scoring rate, down to minScoringRate.
func (a *Agent) backOff(logger *slog.Logger) {
	current := a.limiter.Limit()
	if current == rate.Inf {
		current = 1
	}
	next := rate.Limit(math.Max(float64(current)/2, minScoringRate))
	a.limiter.SetLimit(next)
	logger.Warn("rate limited by the model provider, slowing down", "rate_per_second", float64(next))
}

func hitQuota(eval models.Evaluation) bool {
	for _, e := range eval.Errors {
		if isRateLimitError(errors.New(e)) {
			return true
		}
	}
	return false
}

// isRateLimitError checks if an error is due to rate limiting
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"resourceexhausted", "resource exhausted", "429", "rate limit", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// rankResults orders by mean rating, then similarity, keeping row order for
// ties. Rows without a mean sort last.
func rankResults(results []models.RowScore) {
	sort.SliceStable(results, func(i, j int) bool {
		mi, mj := results[i].Evaluation.Scores.Mean, results[j].Evaluation.Scores.Mean
		if (mi == nil) != (mj == nil) {
			return mi != nil
		}
		if mi != nil && *mi != *mj {
			return *mi > *mj
		}

		si, sj := results[i].Evaluation.Similarity, results[j].Evaluation.Similarity
		if (si == nil) != (sj == nil) {
			return si != nil
		}
		if si != nil && *si != *sj {
			return *si > *sj
		}
		return false
	})

	for i := range results {
		results[i].Rank = i + 1
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
