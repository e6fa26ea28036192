package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"docquery/internal/models"
)

const defaultPage = 1

// Supported reports whether files with the given extension can be
// ingested. Extensions are matched case-insensitively with the dot.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt", ".md":
		return true
	}
	return false
}

// Extract reads a file and returns its text split into page-sized
// sections. Formats without a page concept yield one section per
// natural unit (slide, sheet, whole file).
func Extract(filePath string) ([]models.Section, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return extractPDF(filePath)
	case ".docx":
		return extractDOCX(filePath)
	case ".pptx":
		return extractPPTX(filePath)
	case ".xlsx":
		return extractXLSX(filePath)
	case ".ods":
		return extractODS(filePath)
	case ".txt", ".md":
		return extractText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func extractPDF(filePath string) ([]models.Section, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var sections []models.Section
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		normalized, err := normalize(text)
		if err != nil {
			return nil, err
		}
		if normalized == "" {
			continue
		}
		sections = append(sections, models.Section{Text: normalized, Page: i})
	}
	return sections, nil
}

func extractDOCX(filePath string) ([]models.Section, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var parts []string
	for _, p := range strings.Split(content, "\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	normalized, err := normalize(strings.Join(parts, "\n"))
	if err != nil {
		return nil, err
	}
	return []models.Section{{Text: normalized, Page: defaultPage}}, nil
}

func extractPPTX(filePath string) ([]models.Section, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sections []models.Section
	slide := 0
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		slide++
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		normalized, err := normalize(drawingMLText(string(data)))
		if err != nil {
			return nil, err
		}
		if normalized == "" {
			continue
		}
		sections = append(sections, models.Section{Text: normalized, Page: slide})
	}
	return sections, nil
}

func extractXLSX(filePath string) ([]models.Section, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var sections []models.Section
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		normalized, err := normalize(text.String())
		if err != nil {
			return nil, err
		}
		if normalized == "" {
			continue
		}
		sections = append(sections, models.Section{Text: normalized, Page: sheetNum + 1})
	}
	return sections, nil
}

func extractODS(filePath string) ([]models.Section, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sections []models.Section
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		normalized, err := normalize(text.String())
		if err != nil {
			return nil, err
		}
		if normalized == "" {
			continue
		}
		sections = append(sections, models.Section{Text: normalized, Page: sheetNum + 1})
	}
	return sections, nil
}

func extractText(filePath string) ([]models.Section, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	normalized, err := normalize(string(data))
	if err != nil {
		return nil, err
	}
	if normalized == "" {
		return nil, nil
	}
	return []models.Section{{Text: normalized, Page: defaultPage}}, nil
}

// normalize renders extracted text through goldmark so every format
// ends up as uniform markdown before chunking.
func normalize(text string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return strings.Trim(buf.String(), " \t\n\r"), nil
}

// drawingMLText pulls the text runs out of a pptx slide's XML.
func drawingMLText(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		if end := strings.Index(part, "</a:t>"); end >= 0 {
			text.WriteString(part[:end] + " ")
		}
	}
	return text.String()
}
