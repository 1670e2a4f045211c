package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/resume-screener/internal/dataset"
	"github.com/fmuoria/resume-screener/internal/models"
	"github.com/fmuoria/resume-screener/internal/table"
)

// XLSXFileName is the download name of the workbook export.
const XLSXFileName = "resultados_filtrados.xlsx"

const (
	summarySheet  = "Summary"
	datasetSheet  = "Dataset"
	rankedSheet   = "Ranked Candidates"
	detailsSheet  = "Detailed Analysis"
	maxCellLength = 32767
)

// Report is what a workbook holds: the filtered rows and, when a scoring
// run was made over them, its ranked results.
type Report struct {
	Filter dataset.Filter
	Rows   *table.Frame
	Scores *models.ScoreResponse
}

// ExportToExcel writes the report workbook to outputPath
func ExportToExcel(report Report, outputPath string) error {
	// Ensure output path has .xlsx extension
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}

	// Clean the path for cross-platform compatibility (Windows paths)
	outputPath = filepath.Clean(outputPath)

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, report); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

// WriteXLSX renders the report workbook to w
func WriteXLSX(w io.Writer, report Report) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(datasetSheet); err != nil {
		return err
	}

	if err := createSummarySheet(f, summarySheet, report); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := createDatasetSheet(f, datasetSheet, report.Rows); err != nil {
		return fmt.Errorf("failed to create dataset sheet: %w", err)
	}

	if report.Scores != nil {
		if _, err := f.NewSheet(rankedSheet); err != nil {
			return err
		}
		if _, err := f.NewSheet(detailsSheet); err != nil {
			return err
		}
		if err := createRankedCandidatesSheet(f, rankedSheet, report.Scores.Rows); err != nil {
			return fmt.Errorf("failed to create ranked candidates sheet: %w", err)
		}
		if err := createDetailedAnalysisSheet(f, detailsSheet, report.Scores.Rows); err != nil {
			return fmt.Errorf("failed to create detailed analysis sheet: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
}

func writeHeaders(f *excelize.File, sheetName string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, style)
	}
	return nil
}

func freezeTopRow(f *excelize.File, sheetName string) {
	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// createSummarySheet creates the summary sheet with the filter and statistics
func createSummarySheet(f *excelize.File, sheetName string, report Report) error {
	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 50)

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	section := func(title string) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), title)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), titleStyle)
		f.MergeCell(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
		row++
	}
	line := func(label string, value any) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), label)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), value)
		row++
	}

	section("Candidate Screening Report")
	row++
	line("Job Title:", orAny(report.Filter.JobTitle))
	line("Recruiter:", orAny(report.Filter.Recruiter))
	line("Generated:", time.Now().Format("2006-01-02 15:04:05"))
	rows := 0
	if report.Rows != nil {
		rows = report.Rows.Len()
	}
	line("Matching Rows:", rows)

	if report.Scores == nil {
		return nil
	}

	row++
	section("Scoring Run")
	line("Run ID:", report.Scores.RunID)
	line("Candidates Scored:", len(report.Scores.Rows))

	var means, sims []float64
	for _, r := range report.Scores.Rows {
		if r.Evaluation.Scores.Mean != nil {
			means = append(means, *r.Evaluation.Scores.Mean)
		}
		if r.Evaluation.SimilarityPercent != nil {
			sims = append(sims, *r.Evaluation.SimilarityPercent)
		}
	}
	line("Without Ratings:", len(report.Scores.Rows)-len(means))

	if len(means) > 0 {
		lo, hi, avg := stats(means)
		line("Average Rating (0-5):", fmt.Sprintf("%.2f", avg))
		line("Highest Rating:", fmt.Sprintf("%.2f", hi))
		line("Lowest Rating:", fmt.Sprintf("%.2f", lo))
	}
	if len(sims) > 0 {
		_, hi, avg := stats(sims)
		line("Average Similarity (%):", fmt.Sprintf("%.2f", avg))
		line("Highest Similarity (%):", fmt.Sprintf("%.2f", hi))
	}

	return nil
}

func stats(values []float64) (lo, hi, avg float64) {
	lo, hi = values[0], values[0]
	var sum float64
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}
	return lo, hi, sum / float64(len(values))
}

func orAny(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(any)"
	}
	return s
}

// createDatasetSheet writes the filtered rows under their column names
func createDatasetSheet(f *excelize.File, sheetName string, rows *table.Frame) error {
	if rows == nil {
		return nil
	}
	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	columns := rows.Columns()
	if err := writeHeaders(f, sheetName, columns, header); err != nil {
		return err
	}

	for i, r := range rows.Records() {
		values := make([]any, len(columns))
		for j, c := range columns {
			values[j] = clip(r.Text(c))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	if len(columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(columns))
		if err != nil {
			return err
		}
		f.SetColWidth(sheetName, "A", last, 20)
		if rows.Len() > 0 {
			f.AutoFilter(sheetName, fmt.Sprintf("A1:%s%d", last, rows.Len()+1), []excelize.AutoFilterOptions{})
		}
	}
	freezeTopRow(f, sheetName)
	return nil
}

// clip keeps cell text within the Excel cell limit; résumé texts can exceed it.
func clip(s string) string {
	if len(s) <= maxCellLength {
		return s
	}
	cut := maxCellLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// ratingFill picks the row color from the mean rating
func ratingFill(mean *float64) string {
	switch {
	case mean == nil:
		return "D9D9D9"
	case *mean >= 4:
		return "C6EFCE"
	case *mean >= 3:
		return "FFEB9C"
	case *mean >= 2:
		return "FFC7CE"
	default:
		return "FF9999"
	}
}

// createRankedCandidatesSheet creates the ranked candidates sheet with color-coding
func createRankedCandidatesSheet(f *excelize.File, sheetName string, results []models.RowScore) error {
	widths := map[string]float64{"A": 8, "B": 28, "C": 14, "D": 14, "E": 30, "F": 14, "G": 14}
	for col, w := range widths {
		f.SetColWidth(sheetName, col, col, w)
	}

	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	headers := []string{"Rank", "Candidate", "Candidate Code", "Job Code", "Job Title", "Similarity (%)", "Mean Rating"}
	if err := writeHeaders(f, sheetName, headers, header); err != nil {
		return err
	}

	styles := make(map[string]int)
	for i, result := range results {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), result.Rank)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), result.Name)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), result.CandidateCode)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), result.JobCode)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), result.JobTitle)
		if p := result.Evaluation.SimilarityPercent; p != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), fmt.Sprintf("%.2f", *p))
		}
		if m := result.Evaluation.Scores.Mean; m != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), fmt.Sprintf("%.2f", *m))
		}

		// Apply color-coding based on mean rating
		fill := ratingFill(result.Evaluation.Scores.Mean)
		style, ok := styles[fill]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Fill:   excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
				Border: thinBorder,
			})
			if err != nil {
				return err
			}
			styles[fill] = style
		}
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), style)
	}

	if len(results) > 0 {
		f.AutoFilter(sheetName, fmt.Sprintf("A1:G%d", len(results)+1), []excelize.AutoFilterOptions{})
	}
	freezeTopRow(f, sheetName)
	return nil
}

// createDetailedAnalysisSheet lists every parsed rating and the full report
func createDetailedAnalysisSheet(f *excelize.File, sheetName string, results []models.RowScore) error {
	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "B", 25)
	f.SetColWidth(sheetName, "C", "C", 25)
	f.SetColWidth(sheetName, "D", "D", 10)
	f.SetColWidth(sheetName, "E", "E", 80)

	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	headers := []string{"Rank", "Candidate", "Criterion", "Rating", "Report"}
	if err := writeHeaders(f, sheetName, headers, header); err != nil {
		return err
	}

	row := 2
	for _, result := range results {
		first := row
		criteria := result.Evaluation.Scores.Criteria
		if len(criteria) == 0 {
			criteria = []models.Criterion{{}}
		}
		for _, c := range criteria {
			f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), result.Rank)
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), result.Name)
			f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), c.Label)
			if c.Label != "" || c.Score != 0 {
				f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), c.Score)
			}
			row++
		}

		f.SetCellValue(sheetName, fmt.Sprintf("E%d", first), clip(result.Evaluation.Report))
		if row-1 > first {
			f.MergeCell(sheetName, fmt.Sprintf("E%d", first), fmt.Sprintf("E%d", row-1))
		}
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", first), fmt.Sprintf("E%d", row-1), wrapStyle)
	}

	freezeTopRow(f, sheetName)
	return nil
}
