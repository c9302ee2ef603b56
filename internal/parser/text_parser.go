package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseTextFile splits a plain-text file into blank-line separated paragraphs.
func ParseTextFile(path string) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return parseParagraphs(path, f)
}

func parseParagraphs(source string, r io.Reader) ([]Chunk, error) {
	var chunks []Chunk
	var para strings.Builder

	flush := func() {
		if text := strings.TrimSpace(para.String()); text != "" {
			chunks = append(chunks, Chunk{Source: source, Text: text})
		}
		para.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if para.Len() > 0 {
			para.WriteString(" ")
		}
		para.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", source, err)
	}
	flush()

	return chunks, nil
}
