package chunk

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DOCXExtractor produces paragraph text from a Word document, paragraphs
// joined by blank lines. Embedded images (media parts of the zip) are not
// indexed — they are out of scope for the search path.
type DOCXExtractor struct {
	MaxFileSize int64
}

func NewDOCXExtractor(maxFileSize int64) *DOCXExtractor {
	return &DOCXExtractor{MaxFileSize: maxFileSize}
}

func (d *DOCXExtractor) Name() string { return "docx" }

func (d *DOCXExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".docx")
}

func (d *DOCXExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newExtractError(KindNotFound, path, err)
	}
	if info.IsDir() {
		return nil, newExtractError(KindNotAFile, path, nil)
	}
	if d.MaxFileSize > 0 && info.Size() > d.MaxFileSize {
		return nil, newExtractError(KindTooLarge, path, nil)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, newExtractError(KindDecodeError, path, err)
	}
	defer zr.Close()

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, newExtractError(KindDecodeError, path, err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, newExtractError(KindDecodeError, path, err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, newExtractError(KindDecodeError, path, nil)
	}

	paragraphs, err := parseDocxParagraphs(docXML)
	if err != nil {
		return nil, newExtractError(KindDecodeError, path, err)
	}

	md := NewMetadata()
	md.Set("extractor", d.Name())
	md.Set("path", path)
	md.Set("filename", filepath.Base(path))
	md.Set("extension", ".docx")

	return &Extraction{Text: strings.Join(paragraphs, "\n\n"), Metadata: md}, nil
}

// docxBody mirrors just enough of WordprocessingML to recover paragraph
// text runs: w:body > w:p > w:r > w:t.
type docxBody struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Value string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseDocxParagraphs(docXML []byte) ([]string, error) {
	var doc docxBody
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return nil, err
	}

	var paragraphs []string
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Value)
			}
		}
		text := strings.TrimSpace(b.String())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return paragraphs, nil
}
