package e2e

import (
	"archive/zip"
	"bytes"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions is the list of file extensions used in file-based
// tests. PDF is not generated here; the extractor's own tests cover it.
var SupportedFileExtensions = []string{
	".txt", ".md", ".rst",
	".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods",
}

const (
	nsWord  = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	nsSlide = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsODF   = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"`
)

// MinimalFile returns the bytes of a minimal file of the given extension
// whose extracted text is text. text must not need XML escaping.
func MinimalFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".docx":
		return zipOf(map[string]string{
			"word/document.xml": `<w:document ` + nsWord + `><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`,
		})
	case ".pptx":
		return zipOf(map[string]string{
			"ppt/slides/slide1.xml": `<p:sld ` + nsSlide + `><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`,
		})
	case ".odt":
		return zipOf(map[string]string{
			"content.xml": `<office:document-content ` + nsODF + `><office:body><office:text><text:p>` + text + `</text:p></office:text></office:body></office:document-content>`,
		})
	case ".odp":
		return zipOf(map[string]string{
			"content.xml": `<office:document-content ` + nsODF + `><office:body><draw:page><draw:text-box><text:p>` + text + `</text:p></draw:text-box></draw:page></office:body></office:document-content>`,
		})
	case ".ods":
		return zipOf(map[string]string{
			"content.xml": `<office:document-content ` + nsODF + `><office:body><table:table><table:table-row><table:table-cell><text:p>` + text + `</text:p></table:table-cell></table:table-row></table:table></office:body></office:document-content>`,
		})
	case ".xlsx":
		f := excelize.NewFile()
		defer f.Close()
		if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if _, err := f.WriteTo(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return []byte(text), nil
	}
}

func zipOf(files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
