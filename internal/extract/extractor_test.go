package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

const (
	nsWord  = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	nsSlide = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsODF   = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"`
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_Plain(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    string
	}{
		{"txt", []byte("Hello world\nLine 2"), ".txt", "Hello world\nLine 2"},
		{"markdown utf8", []byte("caf\xc3\xa9"), ".md", "café"},
		{"upper case ext", []byte("x"), ".TXT", "x"},
		{"no ext", []byte("raw"), "", "raw"},
		{"bom dropped", append([]byte{0xEF, 0xBB, 0xBF}, "text"...), ".txt", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.content, tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_PlainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte("hello\x80world"), ".txt")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestExtractBytes_Unsupported(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("x"), ".xyz"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	if e.Supported(".xyz") || !e.Supported(".PDF") {
		t.Error("Supported() mismatch")
	}
}

func TestExtractBytes_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_DocxParagraphs(t *testing.T) {
	doc := `<w:document ` + nsWord + `><w:body>` +
		`<w:p w:rsidR="00A1"><w:r><w:t>Ada </w:t></w:r><w:r><w:t>Lovelace</w:t></w:r></w:p>` +
		`<w:p><w:pPr/></w:p>` +
		`<w:p><w:r><w:t>wrote notes &amp; programs</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	got, err := NewExtractor().ExtractBytes(zipOf(t, map[string]string{"word/document.xml": doc}), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Ada Lovelace\nwrote notes & programs"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_DocxMainPartFromContentTypes(t *testing.T) {
	types := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/>
</Types>`
	doc := `<w:document ` + nsWord + `><w:body><w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`
	content := zipOf(t, map[string]string{"[Content_Types].xml": types, "word/document2.xml": doc})
	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_PptxSlideOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld ` + nsSlide + `><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	content := zipOf(t, map[string]string{
		"ppt/slides/slide10.xml":           slide("Tenth"),
		"ppt/slides/slide2.xml":            slide("Second"),
		"ppt/slides/slide1.xml":            slide("First"),
		"ppt/slides/_rels/slide1.xml.rels": "<Relationships/>",
	})
	got, err := NewExtractor().ExtractBytes(content, ".pptx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "First\nSecond\nTenth"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_OpenDocumentDocumentOrder(t *testing.T) {
	content := `<office:document-content ` + nsODF + `><office:body><draw:page>` +
		`<text:h>Slide title</text:h><text:p>Body <text:span>text</text:span></text:p>` +
		`</draw:page></office:body></office:document-content>`
	for _, ext := range []string{".odp", ".odt"} {
		got, err := NewExtractor().ExtractBytes(zipOf(t, map[string]string{"content.xml": content}), ext)
		if err != nil {
			t.Fatalf("%s: %v", ext, err)
		}
		if want := "Slide title\nBody text"; got != want {
			t.Errorf("%s: got %q, want %q", ext, got, want)
		}
	}
}

func TestExtractBytes_OpenDocumentSpreadsheet(t *testing.T) {
	content := `<office:document-content ` + nsODF + `><office:body><table:table><table:table-row>` +
		`<table:table-cell><text:p>Cell A</text:p></table:table-cell>` +
		`<table:table-cell><text:p>Cell B</text:p></table:table-cell>` +
		`</table:table-row></table:table></office:body></office:document-content>`
	got, err := NewExtractor().ExtractBytes(zipOf(t, map[string]string{"content.xml": content}), ".ods")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Cell A\nCell B" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_ZipErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".pptx"); !errors.Is(err, ErrDecode) {
		t.Errorf("not a zip: err = %v", err)
	}
	missing := zipOf(t, map[string]string{"other.xml": "<x/>"})
	if _, err := e.ExtractBytes(missing, ".odp"); !errors.Is(err, ErrDecode) {
		t.Errorf("missing content.xml: err = %v", err)
	}
	broken := zipOf(t, map[string]string{"content.xml": "<office:document"})
	if _, err := e.ExtractBytes(broken, ".ods"); !errors.Is(err, ErrDecode) {
		t.Errorf("broken xml: err = %v", err)
	}
}

func TestExtractBytes_PptxNoSlides(t *testing.T) {
	content := zipOf(t, map[string]string{"docProps/core.xml": "<x/>"})
	got, err := NewExtractor().ExtractBytes(content, ".pptx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_Files(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(plain, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	sheet := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Spreadsheet text")
	if err := f.SaveAs(sheet); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	e := NewExtractor()
	for path, want := range map[string]string{plain: "File content", sheet: "Spreadsheet text"} {
		got, err := e.Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", path, err)
		}
		if got != want {
			t.Errorf("Extract(%s) = %q, want %q", path, got, want)
		}
	}

	if _, err := e.Extract(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExtensions(t *testing.T) {
	exts := NewExtractor().Extensions()
	want := map[string]bool{".txt": true, ".pdf": true, ".docx": true, ".xlsx": true, ".odt": true}
	found := 0
	for _, ext := range exts {
		if ext == "" {
			t.Error("empty extension listed")
		}
		if want[ext] {
			found++
		}
	}
	if found != len(want) {
		t.Errorf("Extensions() = %v", exts)
	}
}
