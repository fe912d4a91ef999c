package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"resume-rag/internal/models"
)

var (
	errNoText       = errors.New("no extractable text")
	slideNameRe     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
	supportedFormat = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".xltm", ".md", ".txt"}
)

// Loader extracts per-page text from documents.
type Loader struct {
	// TempDir receives uploaded bytes while they are parsed. Empty means os.TempDir().
	TempDir string
}

// SupportedFormats lists the file extensions Load understands.
func SupportedFormats() []string {
	return append([]string(nil), supportedFormat...)
}

// Load reads the file at path into a Document with one page per physical page,
// slide or sheet. Every failure is reported as a *models.DocumentLoadError.
func (l *Loader) Load(path string) (doc models.Document, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed inputs
		if r := recover(); r != nil {
			err = &models.DocumentLoadError{Path: path, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	pages, err := parsePages(path)
	if err != nil {
		return models.Document{}, &models.DocumentLoadError{Path: path, Err: err}
	}
	if len(pages) == 0 {
		return models.Document{}, &models.DocumentLoadError{Path: path, Err: errNoText}
	}

	log.Debug().Str("path", path).Int("pages", len(pages)).Msg("Loaded document")
	return models.Document{Source: path, Pages: pages}, nil
}

// LoadBytes parses an uploaded document. The bytes are written to a temporary
// file that is removed again on every exit path.
func (l *Loader) LoadBytes(filename string, data []byte) (models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	tmp, err := os.CreateTemp(l.TempDir, "upload-*"+ext)
	if err != nil {
		return models.Document{}, &models.DocumentLoadError{Path: filename, Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", tmpPath).Msg("Failed to remove temp file")
		}
	}()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return models.Document{}, &models.DocumentLoadError{Path: filename, Err: err}
	}

	doc, err := l.Load(tmpPath)
	if err != nil {
		var loadErr *models.DocumentLoadError
		if errors.As(err, &loadErr) {
			loadErr.Path = filename
		}
		return models.Document{}, err
	}
	doc.Source = filename
	return doc, nil
}

func parsePages(filePath string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	var (
		texts []string
		err   error
	)
	switch ext {
	case ".pdf":
		texts, err = parsePDF(filePath)
	case ".docx":
		texts, err = parseDOCX(filePath)
	case ".pptx":
		texts, err = parsePPTX(filePath)
	case ".xlsx":
		texts, err = parseXLSX(filePath)
	case ".xlsm", ".xltx", ".xltm":
		texts, err = parseExcelize(filePath)
	case ".md":
		texts, err = parseMarkdown(filePath)
	case ".txt":
		texts, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %q", ext)
	}
	if err != nil {
		return nil, err
	}

	// page indexes follow the physical order even when pages are blank
	var pages []models.Page
	hasText := false
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			hasText = true
		}
		pages = append(pages, models.Page{Index: i, Text: t})
	}
	if !hasText {
		return nil, nil
	}
	return pages, nil
}

func parsePDF(filePath string) ([]string, error) {
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

	numPages := reader.NumPage()
	texts := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, pageText)
	}
	return texts, nil
}

func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return docxPages(r.Editable().GetContent())
}

// docxPages extracts paragraph text from word/document.xml. Explicit page
// breaks start a new page.
func docxPages(content string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		pages  []string
		page   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				page.WriteString("\t")
			case "br":
				if attr(t, "type") == "page" {
					pages = append(pages, strings.TrimSpace(page.String()))
					page.Reset()
				} else {
					page.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				page.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				page.Write(t)
			}
		}
	}
	return append(pages, strings.TrimSpace(page.String())), nil
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{num: num, text: extractTextFromXML(string(data))})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	texts := make([]string, len(slides))
	for i, s := range slides {
		texts[i] = s.text
	}
	return texts, nil
}

// extractTextFromXML collects <a:t> runs, one line per <a:p> paragraph.
func extractTextFromXML(xmlContent string) string {
	var sb strings.Builder
	for _, para := range strings.Split(xmlContent, "</a:p>") {
		var line strings.Builder
		parts := strings.Split(para, "<a:t>")
		for i, part := range parts {
			if i == 0 {
				continue
			}
			if endIdx := strings.Index(part, "</a:t>"); endIdx >= 0 {
				line.WriteString(html.UnescapeString(part[:endIdx]))
			}
		}
		if line.Len() > 0 {
			sb.WriteString(line.String())
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func parseXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		texts = append(texts, sheetText(sheet.Name, rows))
	}
	return texts, nil
}

func parseExcelize(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var texts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		texts = append(texts, sheetText(sheetName, rows))
	}
	return texts, nil
}

func sheetText(name string, rows [][]string) string {
	var sb strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("Sheet: %s\n%s", name, strings.TrimRight(sb.String(), "\n"))
}

func parseMarkdown(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{markdownToText(data)}, nil
}

// markdownToText renders the markdown AST as plain text with one blank line
// between blocks.
func markdownToText(source []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() != ast.TypeBlock || buf.Len() == 0 {
				return ast.WalkContinue, nil
			}
			if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteString("\n")
			}
			switch n.Kind() {
			case ast.KindParagraph, ast.KindHeading, ast.KindList, ast.KindBlockquote,
				ast.KindFencedCodeBlock, ast.KindCodeBlock:
				if !bytes.HasSuffix(buf.Bytes(), []byte("\n\n")) {
					buf.WriteString("\n")
				}
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			buf.WriteString("- ")
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(blankLinesRe.ReplaceAllString(buf.String(), "\n\n"))
}

func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	// form feeds separate pages in text exports
	return strings.Split(string(data), "\f"), nil
}
