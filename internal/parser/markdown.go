package parser

import (
	"bufio"
	"fmt"
	"strings"
)

// ChunkMarkdown splits a markdown document on headings. A document without
// headings is a single chunk.
func ChunkMarkdown(source, content string) ([]Chunk, error) {
	var chunks []Chunk

	var heading string
	var body strings.Builder

	flush := func() {
		if text := strings.TrimSpace(body.String()); text != "" {
			chunks = append(chunks, Chunk{Source: source, Heading: heading, Text: text})
		}
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	inFence := false
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "#") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			continue
		}

		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", source, err)
	}
	flush()

	return chunks, nil
}
