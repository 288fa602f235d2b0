package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractedDocument is the plain text of an uploaded PDF.
type ExtractedDocument struct {
	Text  string
	Pages int
}

// ExtractText returns the plain text of every readable page. Pages that fail
// to decode are skipped.
func (s *PDFService) ExtractText(data []byte) (*ExtractedDocument, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, validationErr("file is not a PDF document")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, validationErr(fmt.Sprintf("unreadable PDF document: %v", err))
	}

	var text strings.Builder
	pages := reader.NumPage()
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n")
	}

	return &ExtractedDocument{Text: strings.TrimSpace(text.String()), Pages: pages}, nil
}
