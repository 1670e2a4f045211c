package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/resume-screener/internal/dataset"
	"github.com/fmuoria/resume-screener/internal/models"
	"github.com/fmuoria/resume-screener/internal/table"
	"github.com/fmuoria/resume-screener/internal/tree"
)

func sampleRows() *table.Frame {
	f := table.New(dataset.ColName, dataset.ColCandidateCode, dataset.ColJobTitle, dataset.ColResumeText)
	f.Append(
		tree.M(dataset.ColName, tree.Str("Ana")),
		tree.M(dataset.ColCandidateCode, tree.Int(31000)),
		tree.M(dataset.ColJobTitle, tree.Str("Engineer")),
		tree.M(dataset.ColResumeText, tree.Str("Go, SQL\n\"5 anos\"")),
	)
	f.Append(
		tree.M(dataset.ColName, tree.Str("Bia")),
		tree.M(dataset.ColJobTitle, tree.Str("Engineer")),
	)
	return f
}

func ptr(v float64) *float64 { return &v }

func sampleScores() *models.ScoreResponse {
	return &models.ScoreResponse{
		RunID:    "run-1",
		JobTitle: "Engineer",
		Matched:  2,
		Rows: []models.RowScore{
			{
				Rank: 1, Name: "Ana", CandidateCode: "31000", JobTitle: "Engineer",
				Evaluation: models.Evaluation{
					SimilarityPercent: ptr(81.5),
					Report:            "Technical skills: 4/5\nEducation: 3/5",
					Scores: models.Scores{
						Criteria: []models.Criterion{{Label: "Technical skills", Score: 4}, {Label: "Education", Score: 3}},
						Mean:     ptr(3.5),
					},
				},
			},
			{
				Rank: 2, Name: "Bia", JobTitle: "Engineer",
				Evaluation: models.Evaluation{Report: "Error generating report: quota"},
			},
		},
	}
}

// TestExportToExcel_EnsuresXlsxExtension tests that .xlsx extension is added if missing
func TestExportToExcel_EnsuresXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "test_report")
	err := ExportToExcel(Report{Rows: sampleRows()}, outputPath)
	if err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}

	expectedPath := outputPath + ".xlsx"
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", expectedPath)
	}
}

// TestExportToExcel_HandlesExistingXlsxExtension tests that existing .xlsx extension is preserved
func TestExportToExcel_HandlesExistingXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "test_report.XLSX")
	if err := ExportToExcel(Report{Rows: sampleRows()}, outputPath); err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}

	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", outputPath)
	}
	if _, err := os.Stat(outputPath + ".xlsx"); err == nil {
		t.Error("Should not have double .xlsx extension")
	}
}

func TestWriteXLSX_DatasetOnly(t *testing.T) {
	var buf bytes.Buffer
	report := Report{Filter: dataset.Filter{JobTitle: "Engineer"}, Rows: sampleRows()}
	if err := WriteXLSX(&buf, report); err != nil {
		t.Fatalf("WriteXLSX() failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	if got := strings.Join(f.GetSheetList(), ","); got != "Summary,Dataset" {
		t.Errorf("sheets = %s, want Summary,Dataset", got)
	}

	rows, err := f.GetRows(datasetSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d dataset rows, want header + 2", len(rows))
	}
	if rows[0][0] != dataset.ColName || rows[1][0] != "Ana" || rows[1][1] != "31000" {
		t.Errorf("unexpected dataset rows %v", rows[:2])
	}

	recruiter, _ := f.GetCellValue(summarySheet, "B4")
	if recruiter != "(any)" {
		t.Errorf("recruiter cell = %q, want (any)", recruiter)
	}
}

func TestWriteXLSX_WithScores(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Report{Rows: sampleRows(), Scores: sampleScores()}); err != nil {
		t.Fatalf("WriteXLSX() failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	ranked, err := f.GetRows(rankedSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 3 {
		t.Fatalf("got %d ranked rows, want header + 2", len(ranked))
	}
	if ranked[1][1] != "Ana" || ranked[1][5] != "81.50" || ranked[1][6] != "3.50" {
		t.Errorf("unexpected first ranked row %v", ranked[1])
	}

	details, err := f.GetRows(detailsSheet)
	if err != nil {
		t.Fatal(err)
	}
	// header + two criteria for Ana + one line for Bia
	if len(details) != 4 {
		t.Fatalf("got %d detail rows, want 4", len(details))
	}
	if details[2][2] != "Education" {
		t.Errorf("second criterion = %q, want Education", details[2][2])
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("é", maxCellLength)
	got := clip(long)
	if len(got) > maxCellLength {
		t.Errorf("clip() left %d bytes", len(got))
	}
	if !strings.HasPrefix(long, got) || len(got)%2 != 0 {
		t.Error("clip() split a multi-byte character")
	}
	if clip("short") != "short" {
		t.Error("clip() changed a short string")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if strings.Join(records[0], ",") != "nome,codigo,titulo_vaga,cv_pt" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][3] != "Go, SQL\n\"5 anos\"" {
		t.Errorf("quoted field = %q", records[1][3])
	}
	if records[2][1] != "" {
		t.Errorf("null cell = %q, want empty", records[2][1])
	}
}

func TestWriteCSV_EmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table.New("a", "b")); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}
	if buf.String() != "a,b\n" {
		t.Errorf("got %q, want only the header", buf.String())
	}
}
