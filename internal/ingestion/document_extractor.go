package ingestion

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	// MinExtractedTextLength is the minimum text length required for successful PDF extraction
	MinExtractedTextLength = 20
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3
)

// Extraction is the outcome of reading an uploaded document. When the
// document cannot be read Text is empty and Message tells the user why.
type Extraction struct {
	Text    string
	Message string
}

// OK reports whether text was extracted.
func (e Extraction) OK() bool { return e.Message == "" }

// Extract reads a document and never fails: problems become a user-facing
// message and processing continues with empty text.
func Extract(filename string, data []byte) Extraction {
	text, err := ExtractText(filename, data)
	if err != nil {
		return Extraction{Message: fmt.Sprintf("Could not extract text from %s: %v", filepath.Base(filename), err)}
	}
	return Extraction{Text: text}
}

// ExtractText extracts text from PDF, DOCX or TXT content. The extension
// decides the format; without a known extension the content is sniffed.
func ExtractText(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".txt":
		return extractTXT(data)
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case "":
		return extractSniffed(data)
	default:
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
}

func extractSniffed(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return extractPDF(data)
	case bytes.HasPrefix(data, []byte("PK")):
		return extractDOCX(data)
	case !IsBinaryData(string(data)):
		return extractTXT(data)
	default:
		return "", fmt.Errorf("unsupported file type: unrecognised binary content")
	}
}

func extractTXT(data []byte) (string, error) {
	if IsBinaryData(string(data)) {
		return "", fmt.Errorf("file looks binary, not plain text")
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}

// extractPDF reads the text layer of every page. The pdf package panics on
// some malformed files.
func extractPDF(data []byte) (_ string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if len(text) < MinExtractedTextLength {
		return "", fmt.Errorf("extracted text is too short (scanned PDF without a text layer?)")
	}
	return text, nil
}

var (
	docxBreak = regexp.MustCompile(`</w:p>|<w:br/>|<w:cr/>`)
	docxTab   = regexp.MustCompile(`<w:tab/>`)
	xmlTag    = regexp.MustCompile(`<[^>]+>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// extractDOCX strips the WordprocessingML markup of the main document part,
// keeping paragraph breaks.
func extractDOCX(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = docxBreak.ReplaceAllString(content, "\n")
	content = docxTab.ReplaceAllString(content, "\t")
	content = xmlTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = blankRuns.ReplaceAllString(content, "\n\n")

	text := strings.TrimSpace(content)
	if text == "" {
		return "", fmt.Errorf("document has no text")
	}
	return text, nil
}

// IsBinaryData checks if content appears to be binary (PDF/ZIP markers)
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	// Check for PDF magic number
	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	// Check for ZIP magic number (DOCX files)
	if len(content) >= 2 && content[:2] == "PK" {
		return true
	}

	// Check for high proportion of non-printable characters
	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}
