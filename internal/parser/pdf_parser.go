package parser

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ParsePDFFile extracts the text layer of a PDF and splits it into
// paragraphs. Scanned PDFs without a text layer yield no chunks.
func ParsePDFFile(path string) (chunks []Chunk, err error) {
	// the reader panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			chunks, err = nil, fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return parseParagraphs(path, text)
}

func isPDF(path string) bool {
	return extension(path) == ".pdf"
}
