package parser

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/seyitcvk/chatbot-rag/internal/helper"
	"github.com/seyitcvk/chatbot-rag/internal/models"
)

// ExtractionError marks a single file that could not be read or parsed.
// Ingestion isolates these per file and continues with the rest.
type ExtractionError struct {
	File string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.File, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extract reads one file and returns its plain text as a Document,
// preserving paragraph boundaries where the format allows. Failures are
// reported as *ExtractionError.
func Extract(filePath string) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var (
		text       string
		sourceType string
		err        error
	)
	switch ext {
	case ".pdf":
		sourceType = models.SourcePDF
		text, err = extractPDF(filePath)
	case ".csv":
		sourceType = models.SourceCSV
		text, err = extractCSV(filePath)
	case ".txt":
		sourceType = models.SourceTXT
		text, err = extractText(filePath)
	case ".md":
		sourceType = models.SourceMD
		text, err = extractMarkdown(filePath)
	case ".docx":
		sourceType = models.SourceDOCX
		text, err = extractDOCX(filePath)
	case ".xlsx":
		sourceType = models.SourceXLSX
		text, err = extractXLSX(filePath)
	case ".ods":
		sourceType = models.SourceODS
		text, err = extractODS(filePath)
	default:
		err = fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, &ExtractionError{File: filePath, Err: err}
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, &ExtractionError{File: filePath, Err: err}
	}

	doc := &models.Document{
		ID:         id,
		Filename:   filepath.Base(filePath),
		SourceType: sourceType,
		Text:       strings.TrimSpace(text),
	}
	log.Debug().Str("file", doc.Filename).Str("type", sourceType).Int("chars", len(doc.Text)).Msg("Extracted document")
	return doc, nil
}

func extractPDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractCSV renders each record as "col: val | col: val" with the
// header row providing column names, one line per record.
func extractCSV(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var lines []string
	for _, record := range records[1:] {
		fields := make([]string, 0, len(record))
		for i, val := range record {
			name := fmt.Sprintf("col%d", i)
			if i < len(header) {
				name = header[i]
			}
			fields = append(fields, name+": "+val)
		}
		lines = append(lines, strings.Join(fields, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

func extractText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// extractMarkdown parses the file with goldmark and walks the AST,
// collecting text content with blank lines between block elements.
func extractMarkdown(filePath string) (string, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(src))

	var b strings.Builder
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if !entering {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func extractDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "\n") {
		text := extractXMLRuns(p, "<w:t")
		if strings.TrimSpace(text) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(text))
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func extractXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var sheets []string
	for _, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t") + "\n")
		}
		sheets = append(sheets, text.String())
	}
	return strings.Join(sheets, "\n\n"), nil
}

func extractODS(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t") + "\n")
		}
		sheets = append(sheets, text.String())
	}
	return strings.Join(sheets, "\n\n"), nil
}

// extractXMLRuns pulls the text of every <tag>...</tag> run out of raw
// OOXML content. tag is the opening prefix, e.g. "<w:t".
func extractXMLRuns(xmlContent, tag string) string {
	closing := "</" + tag[1:] + ">"
	var text strings.Builder
	parts := strings.Split(xmlContent, tag)
	for i, part := range parts {
		if i == 0 || part == "" {
			continue
		}
		// Guard against longer tag names sharing the prefix (w:tbl etc).
		if part[0] != '>' && part[0] != ' ' && part[0] != '/' {
			continue
		}
		// Skip past the rest of the opening tag.
		gt := strings.Index(part, ">")
		if gt < 0 {
			continue
		}
		part = part[gt+1:]
		if end := strings.Index(part, closing); end >= 0 {
			part = part[:end]
		}
		text.WriteString(part)
	}
	return text.String()
}
