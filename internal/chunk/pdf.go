package chunk

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// PDFExtractor produces page-concatenated text from a PDF file, pages
// separated by a blank line, with page_count recorded in metadata.
//
// This is a minimal reader over the PDF object model: enough to locate
// each page's content stream(s), inflate them (FlateDecode, the
// overwhelmingly common filter for text-bearing content streams) and pull
// the string operands of the Tj/TJ text-showing operators. PDFs that use
// other filters or embed text as outlines/images yield an empty string
// for that page rather than failing the whole extraction.
type PDFExtractor struct {
	MaxFileSize int64
}

func NewPDFExtractor(maxFileSize int64) *PDFExtractor {
	return &PDFExtractor{MaxFileSize: maxFileSize}
}

func (p *PDFExtractor) Name() string { return "pdf" }

func (p *PDFExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (p *PDFExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newExtractError(KindNotFound, path, err)
	}
	if info.IsDir() {
		return nil, newExtractError(KindNotAFile, path, nil)
	}
	if p.MaxFileSize > 0 && info.Size() > p.MaxFileSize {
		return nil, newExtractError(KindTooLarge, path, nil)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newExtractError(KindNotFound, path, err)
	}

	pages := extractPDFPages(raw)
	if len(pages) == 0 {
		return nil, newExtractError(KindDecodeError, path, nil)
	}

	md := NewMetadata()
	md.Set("extractor", p.Name())
	md.Set("path", path)
	md.Set("filename", filepath.Base(path))
	md.Set("extension", ".pdf")
	md.Set("page_count", int64(len(pages)))

	return &Extraction{Text: strings.Join(pages, "\n\n"), Metadata: md}, nil
}

var (
	pdfStreamPattern = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	pdfTextOpPattern = regexp.MustCompile(`(?s)\((?:[^()\\]|\\.)*\)\s*T[jJ]|\[(?:[^\[\]]*)\]\s*TJ`)
	pdfStringPattern = regexp.MustCompile(`(?s)\((?:[^()\\]|\\.)*\)`)
)

// extractPDFPages walks every object stream in the file, inflating
// FlateDecode streams and pulling text-showing operands out of each. It
// does not build a full page tree; streams are concatenated in file
// order, which for the vast majority of linearized/simple PDFs matches
// reading order closely enough for search purposes. Each discovered
// stream becomes one "page" in the returned slice.
func extractPDFPages(raw []byte) []string {
	var pages []string
	matches := pdfStreamPattern.FindAllSubmatch(raw, -1)
	for _, m := range matches {
		body := m[1]
		text := decodePDFStream(body)
		if text == "" {
			continue
		}
		if t := extractPDFText(text); t != "" {
			pages = append(pages, t)
		}
	}
	return pages
}

// decodePDFStream tries to zlib-inflate the stream body (FlateDecode);
// on failure it returns the raw bytes, which lets uncompressed
// content streams (rare but legal) still be scanned for text operators.
func decodePDFStream(body []byte) string {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return string(body)
	}
	return string(out)
}

// extractPDFText pulls the literal-string operands of Tj/TJ operators
// out of a content stream and concatenates them with a space, handling
// PDF's backslash string escapes.
func extractPDFText(stream string) string {
	var b strings.Builder
	ops := pdfTextOpPattern.FindAllString(stream, -1)
	for _, op := range ops {
		for _, s := range pdfStringPattern.FindAllString(op, -1) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(unescapePDFString(s))
		}
	}
	return strings.TrimSpace(b.String())
}

func unescapePDFString(lit string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(lit, "("), ")")
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '(', ')', '\\':
				b.WriteByte(inner[i])
			default:
				if inner[i] >= '0' && inner[i] <= '7' {
					// octal escape, up to 3 digits
					j := i
					for j < len(inner) && j < i+3 && inner[j] >= '0' && inner[j] <= '7' {
						j++
					}
					if v, err := strconv.ParseInt(inner[i:j], 8, 32); err == nil {
						b.WriteByte(byte(v))
					}
					i = j - 1
				} else {
					b.WriteByte(inner[i])
				}
			}
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
