package gateway

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor pulls plain text out of uploaded guideline documents.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText returns the plain text of a guideline document. Raw PDF bytes,
// base64-encoded PDFs and data URLs are all accepted; anything that is not a
// PDF is returned as-is, trimmed.
func (e *PDFExtractor) ExtractText(doc []byte) (string, error) {
	if len(doc) == 0 {
		return "", fmt.Errorf("empty guidelines document")
	}

	data := decodeIfBase64(doc)

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("guidelines document contains no text")
		}
		return text, nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", pageNum, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("PDF contains no extractable text")
	}
	return text, nil
}

// decodeIfBase64 strips an optional data-URL header and decodes base64
// payloads. Uploads arrive either as raw bytes or as the data URL produced by
// a browser file reader.
func decodeIfBase64(doc []byte) []byte {
	s := string(doc)
	if idx := strings.Index(s, ";base64,"); idx >= 0 && idx < 64 {
		s = s[idx+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return doc
	}
	return decoded
}
