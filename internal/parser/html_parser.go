package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "h1, h2, h3, h4, p, li, blockquote, pre, td"

// ParseHTMLFile extracts text from an exported page (a saved résumé or the
// portfolio itself), grouping block text under the preceding heading.
func ParseHTMLFile(path string) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ParseHTML(path, f)
}

func ParseHTML(source string, r io.Reader) ([]Chunk, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, noscript").Remove()

	var chunks []Chunk
	var heading string
	var parts []string

	flush := func() {
		if len(parts) > 0 {
			chunks = append(chunks, Chunk{Source: source, Heading: heading, Text: strings.Join(parts, " ")})
		}
		parts = nil
	}

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are reached on their own.
		if s.ParentsFiltered("p, li, blockquote, td").Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4":
			flush()
			heading = text
		default:
			parts = append(parts, text)
		}
	})
	flush()

	return chunks, nil
}
