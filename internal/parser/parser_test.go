package parser

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"resume-rag/internal/models"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadText(t *testing.T) {
	path := writeFile(t, "resume.txt", "Skills: Python, SQL.\fExperience: 2 years as analyst.")
	doc, err := (&Loader{}).Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("Load returned %d pages, want 2", len(doc.Pages))
	}
	if doc.Pages[0].Index != 0 || doc.Pages[1].Index != 1 {
		t.Errorf("page indexes = %d, %d", doc.Pages[0].Index, doc.Pages[1].Index)
	}
	if doc.Pages[1].Text != "Experience: 2 years as analyst." {
		t.Errorf("second page = %q", doc.Pages[1].Text)
	}
	if doc.Source != path {
		t.Errorf("Source = %q", doc.Source)
	}
}

func TestLoadMarkdown(t *testing.T) {
	path := writeFile(t, "resume.md", "# Jane Doe\n\n**Skills**: Python, SQL\n\n- Tableau\n- dbt\n\n```\nSELECT 1;\n```\n")
	doc, err := (&Loader{}).Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("Load returned %d pages, want 1", len(doc.Pages))
	}
	got := doc.Pages[0].Text
	for _, want := range []string{"Jane Doe", "Skills", "Python, SQL", "Tableau", "dbt", "SELECT 1;"} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown text %q does not contain %q", got, want)
		}
	}
	for _, unwanted := range []string{"#", "**", "```"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("markdown text %q still contains %q", got, unwanted)
		}
	}
}

func TestLoadPPTXOrdersSlides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	slides := map[string]string{
		"ppt/slides/slide10.xml": `<p:sld><a:p><a:r><a:t>Tenth</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide2.xml":  `<p:sld><a:p><a:r><a:t>Second &amp; more</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide1.xml":  `<p:sld><a:p><a:r><a:t>First</a:t></a:r></a:p><a:p><a:r><a:t>line two</a:t></a:r></a:p></p:sld>`,
		"ppt/presentation.xml":   `<p:presentation/>`,
	}
	for _, name := range []string{"ppt/slides/slide10.xml", "ppt/slides/slide2.xml", "ppt/slides/slide1.xml", "ppt/presentation.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(slides[name])); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	f.Close()

	doc, err := (&Loader{}).Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"First\nline two", "Second & more", "Tenth"}
	if len(doc.Pages) != len(want) {
		t.Fatalf("Load returned %d pages, want %d", len(doc.Pages), len(want))
	}
	for i, w := range want {
		if doc.Pages[i].Text != w || doc.Pages[i].Index != i {
			t.Errorf("page %d = %+v, want %q", i, doc.Pages[i], w)
		}
	}
}

func TestLoadSpreadsheets(t *testing.T) {
	for _, ext := range []string{".xlsx", ".xlsm"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "skills"+ext)
			f := excelize.NewFile()
			f.SetCellValue("Sheet1", "A1", "Skill")
			f.SetCellValue("Sheet1", "B1", "Years")
			f.SetCellValue("Sheet1", "A2", "Python")
			f.SetCellValue("Sheet1", "B2", "3")
			if err := f.SaveAs(path); err != nil {
				t.Fatalf("SaveAs failed: %v", err)
			}
			f.Close()

			doc, err := (&Loader{}).Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(doc.Pages) != 1 {
				t.Fatalf("Load returned %d pages, want 1", len(doc.Pages))
			}
			got := doc.Pages[0].Text
			if !strings.HasPrefix(got, "Sheet: Sheet1\n") || !strings.Contains(got, "Python\t3") {
				t.Errorf("sheet text = %q", got)
			}
		})
	}
}

func TestDocxPagesSplitsOnPageBreaks(t *testing.T) {
	content := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Skills: </w:t></w:r><w:r><w:t>Python</w:t></w:r></w:p>` +
		`<w:p><w:r><w:br w:type="page"/></w:r></w:p>` +
		`<w:p><w:r><w:t>References</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	pages, err := docxPages(content)
	if err != nil {
		t.Fatalf("docxPages failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("docxPages returned %d pages, want 2: %q", len(pages), pages)
	}
	if pages[0] != "Jane Doe\nSkills: Python" {
		t.Errorf("first page = %q", pages[0])
	}
	if pages[1] != "References" {
		t.Errorf("second page = %q", pages[1])
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name, file, body string
	}{
		{"corrupt pdf", "resume.pdf", "this is not a pdf"},
		{"unsupported format", "resume.rtf", "{\\rtf1}"},
		{"no text", "resume.txt", "   \n\t"},
		{"corrupt pptx", "deck.pptx", "not a zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.body)
			_, err := (&Loader{}).Load(path)
			var loadErr *models.DocumentLoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("Load error = %v, want DocumentLoadError", err)
			}
			if loadErr.Path != path {
				t.Errorf("Path = %q, want %q", loadErr.Path, path)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := (&Loader{}).Load(filepath.Join(t.TempDir(), "nope.pdf"))
	var loadErr *models.DocumentLoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load error = %v, want DocumentLoadError wrapping ErrNotExist", err)
	}
}

func TestLoadBytesRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	loader := &Loader{TempDir: dir}

	doc, err := loader.LoadBytes("resume.txt", []byte("Skills: Go"))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	if doc.Source != "resume.txt" || doc.Pages[0].Text != "Skills: Go" {
		t.Errorf("doc = %+v", doc)
	}

	_, err = loader.LoadBytes("resume.pdf", []byte("garbage"))
	var loadErr *models.DocumentLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("LoadBytes error = %v, want DocumentLoadError", err)
	}
	if loadErr.Path != "resume.pdf" {
		t.Errorf("Path = %q, want the uploaded file name", loadErr.Path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d files", len(entries))
	}
}
