package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fmuoria/resume-screener/internal/models"
)

const (
	// MaxResumeChars bounds the résumé text sent to the model
	MaxResumeChars = 8000
	// MaxJobDescriptionChars bounds the job description sent to the model
	MaxJobDescriptionChars = 4000
	// MaxRating is the top of the scale every criterion is rated on
	MaxRating = 5
)

// ErrNotConfigured is reported when a collaborator was not set up.
var ErrNotConfigured = errors.New("not configured")

// Generator produces free text from a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Embedder maps texts to vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts ...string) ([][]float32, error)
}

// Scorer evaluates a résumé against a job description with an embedding
// similarity and a generated report
type Scorer struct {
	generator Generator
	embedder  Embedder
	logger    *slog.Logger
}

// NewScorer creates a new scorer instance. Either collaborator may be nil;
// the matching part of every evaluation then reports ErrNotConfigured.
func NewScorer(generator Generator, embedder Embedder) *Scorer {
	return &Scorer{
		generator: generator,
		embedder:  embedder,
		logger:    slog.With("component", "scorer"),
	}
}

// Evaluate calls each collaborator once. Failures never abort: a failed
// similarity leaves it nil, a failed report is replaced by the error text.
func (s *Scorer) Evaluate(ctx context.Context, resume, jobDescription string) models.Evaluation {
	var eval models.Evaluation

	sim, err := s.Similarity(ctx, resume, jobDescription)
	if err != nil {
		s.logger.Warn("similarity failed", "error", err)
		eval.Errors = append(eval.Errors, fmt.Sprintf("similarity: %v", err))
	} else {
		pct := math.Round(sim*10000) / 100
		eval.Similarity = &sim
		eval.SimilarityPercent = &pct
	}

	report, err := s.Report(ctx, resume, jobDescription)
	if err != nil {
		s.logger.Warn("report generation failed", "error", err)
		eval.Report = fmt.Sprintf("Error generating report: %v", err)
		eval.Errors = append(eval.Errors, fmt.Sprintf("report: %v", err))
	} else {
		eval.Report = report
	}
	eval.Scores = ParseScores(eval.Report)

	return eval
}

// Similarity embeds both texts and returns their cosine similarity in [0,1].
func (s *Scorer) Similarity(ctx context.Context, resume, jobDescription string) (float64, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("embeddings %w", ErrNotConfigured)
	}
	vectors, err := s.embedder.Embed(ctx, sanitizeUTF8(resume), sanitizeUTF8(jobDescription))
	if err != nil {
		return 0, err
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(vectors))
	}
	return CosineSimilarity(vectors[0], vectors[1])
}

// Report asks the generative model for a rated assessment.
func (s *Scorer) Report(ctx context.Context, resume, jobDescription string) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("generative model %w", ErrNotConfigured)
	}
	response, err := s.generator.GenerateContent(ctx, buildScoringPrompt(resume, jobDescription))
	if err != nil {
		return "", fmt.Errorf("failed to get LLM response: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [0,1]: opposed vectors count as unrelated.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector lengths differ: %d and %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("zero-length vector")
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, cos)), nil
}

// buildScoringPrompt creates the prompt for the LLM
func buildScoringPrompt(resume, jobDescription string) string {
	resume = sanitizeUTF8(resume)
	if utf8.RuneCountInString(resume) > MaxResumeChars {
		resume = truncate(resume, MaxResumeChars) + "\n[CV truncated for length]"
	}
	jobDescription = sanitizeUTF8(jobDescription)
	if utf8.RuneCountInString(jobDescription) > MaxJobDescriptionChars {
		jobDescription = truncate(jobDescription, MaxJobDescriptionChars) + "\n[Job description truncated for length]"
	}

	var sb strings.Builder

	sb.WriteString("You are an expert recruiter assessing how well a candidate fits a job opening.\n\n")

	sb.WriteString("## JOB DESCRIPTION\n")
	sb.WriteString(jobDescription)
	sb.WriteString("\n\n")

	sb.WriteString("## CANDIDATE RÉSUMÉ\n")
	sb.WriteString(resume)
	sb.WriteString("\n\n")

	sb.WriteString("## EVALUATION INSTRUCTIONS\n")
	sb.WriteString("Rate the candidate on each criterion below with a whole or half number out of 5, ")
	sb.WriteString(fmt.Sprintf("written exactly as `<score>/%d`, one criterion per line:\n", MaxRating))
	for _, c := range criteria {
		sb.WriteString(fmt.Sprintf("- %s: <score>/%d\n", c, MaxRating))
	}
	sb.WriteString("\nAfter the ratings, write a short justification for each criterion and a final recommendation. ")
	sb.WriteString("Do not write any other number followed by /5. ")
	sb.WriteString("Answer in the language of the résumé.\n")

	return sb.String()
}

var criteria = []string{
	"Technical skills",
	"Relevant experience",
	"Education",
	"Languages",
	"Behavioural fit",
}

// scorePattern matches "n/5" ratings; the trailing group keeps "3/50" out.
var scorePattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*/\s*5(?:[^\d]|$)`)

// ParseScores extracts every "n/5" rating from a report, labelled with the
// text preceding it on its line, and their mean. Values above the scale are
// ignored.
func ParseScores(report string) models.Scores {
	scores := models.Scores{Criteria: []models.Criterion{}}

	for _, m := range scorePattern.FindAllStringSubmatchIndex(report, -1) {
		raw := strings.Replace(report[m[2]:m[3]], ",", ".", 1)
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value > MaxRating {
			continue
		}
		scores.Criteria = append(scores.Criteria, models.Criterion{
			Label: labelBefore(report, m[0]),
			Score: value,
		})
	}

	if n := len(scores.Criteria); n > 0 {
		var sum float64
		for _, c := range scores.Criteria {
			sum += c.Score
		}
		mean := math.Round(sum/float64(n)*100) / 100
		scores.Mean = &mean
	}
	return scores
}

func labelBefore(report string, end int) string {
	start := strings.LastIndexByte(report[:end], '\n') + 1
	label := strings.Trim(report[start:end], " \t*#-_|:•")
	return strings.TrimSpace(strings.TrimSuffix(label, ":"))
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// truncate shortens s to maxLen runes, marking the cut with "..."
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
