package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// zippedXML describes a document format stored as XML parts inside a zip
// archive. Each paragraph becomes one line of text.
type zippedXML struct {
	name string
	// parts returns the archive members holding body text, in reading order.
	parts func(zr *zip.Reader) ([]string, error)
	// paragraphs selects paragraph elements within a part.
	paragraphs string
	// runs selects text elements within a paragraph; empty means the
	// paragraph's whole inner text.
	runs string
}

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

var (
	wordprocessing = zippedXML{
		name:       "DOCX",
		parts:      docxMainPart,
		paragraphs: "//*[local-name()='p']",
		runs:       ".//*[local-name()='t']",
	}
	presentation = zippedXML{
		name:       "PPTX",
		parts:      pptxSlides,
		paragraphs: "//*[local-name()='p']",
		runs:       ".//*[local-name()='t']",
	}
	openDocument = zippedXML{
		name:       "OpenDocument",
		parts:      func(*zip.Reader) ([]string, error) { return []string{"content.xml"}, nil },
		paragraphs: "//*[local-name()='p' or local-name()='h']",
	}
)

func (z zippedXML) extract(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a zip archive: %v", ErrDecode, z.name, err)
	}
	parts, err := z.parts(zr)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, part := range parts {
		doc, err := parsePart(zr, part)
		if err != nil {
			return "", fmt.Errorf("%w: %s %s: %v", ErrDecode, z.name, part, err)
		}
		paras, err := xmlquery.QueryAll(doc, z.paragraphs)
		if err != nil {
			return "", fmt.Errorf("%s: %w", z.name, err)
		}
		for _, p := range paras {
			if line := z.paragraphText(p); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (z zippedXML) paragraphText(p *xmlquery.Node) string {
	if z.runs == "" {
		return strings.TrimSpace(p.InnerText())
	}
	var b strings.Builder
	for _, r := range xmlquery.Find(p, z.runs) {
		b.WriteString(r.InnerText())
	}
	return strings.TrimSpace(b.String())
}

func parsePart(zr *zip.Reader, name string) (*xmlquery.Node, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return xmlquery.Parse(io.Reader(f))
}

// docxMainPart finds the main document from [Content_Types].xml, falling
// back to word/document.xml.
func docxMainPart(zr *zip.Reader) ([]string, error) {
	const fallback = "word/document.xml"
	types, err := parsePart(zr, "[Content_Types].xml")
	if err != nil {
		return []string{fallback}, nil
	}
	override := xmlquery.FindOne(types, "//*[local-name()='Override'][@ContentType='"+docxMainContentType+"']")
	if override == nil {
		return []string{fallback}, nil
	}
	if name := strings.TrimPrefix(override.SelectAttr("PartName"), "/"); name != "" {
		return []string{name}, nil
	}
	return []string{fallback}, nil
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// pptxSlides returns slide parts ordered by slide number.
func pptxSlides(zr *zip.Reader) ([]string, error) {
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n, f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names, nil
}
