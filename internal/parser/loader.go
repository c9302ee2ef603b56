package parser

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxLineSize bounds a single line for the line-oriented parsers.
const maxLineSize = 1024 * 1024

// LoadFile parses one source by extension. password is needed for .enc files
// (encrypted JSONL) only.
func LoadFile(path, password string) ([]Chunk, error) {
	switch extension(path) {
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return ChunkMarkdown(path, string(data))
	case ".html", ".htm":
		return ParseHTMLFile(path)
	case ".txt":
		return ParseTextFile(path)
	case ".pdf":
		return ParsePDFFile(path)
	case ".jsonl":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return ParseQAJSONL(path, data)
	case ".enc":
		data, err := DecryptFile(path, password)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return ParseQAJSONL(path, data)
	}
	return nil, fmt.Errorf("%s: unsupported file type", path)
}

// LoadPaths loads files and walks directories, skipping unsupported files
// found while walking. A PDF that fails to parse is logged and skipped.
func LoadPaths(paths []string, password string) ([]Chunk, error) {
	var all []Chunk
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			chunks, err := loadOne(root, password)
			if err != nil {
				return nil, err
			}
			all = append(all, chunks...)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !Supported(path) {
				return nil
			}
			chunks, err := loadOne(path, password)
			if err != nil {
				return err
			}
			slog.Debug("parsed source", "path", path, "chunks", len(chunks))
			all = append(all, chunks...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

func loadOne(path, password string) ([]Chunk, error) {
	chunks, err := LoadFile(path, password)
	if err != nil && isPDF(path) {
		slog.Warn("skipping unreadable pdf", "path", path, "error", err)
		return nil, nil
	}
	return chunks, err
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func Supported(path string) bool {
	switch extension(path) {
	case ".md", ".markdown", ".html", ".htm", ".txt", ".pdf", ".jsonl", ".enc":
		return true
	}
	return false
}

// SplitLong breaks chunks longer than maxChars at sentence ends, keeping
// heading and source on every piece.
func SplitLong(chunks []Chunk, maxChars int) []Chunk {
	if maxChars <= 0 {
		return chunks
	}
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		text := c.Text
		for len(text) > maxChars {
			cut := strings.LastIndex(text[:maxChars], ". ")
			if cut <= 0 {
				cut = strings.LastIndexByte(text[:maxChars], ' ')
			}
			if cut <= 0 {
				cut = runeCut(text, maxChars) - 1
			}
			piece := c
			piece.Text = strings.TrimSpace(text[:cut+1])
			out = append(out, piece)
			text = strings.TrimSpace(text[cut+1:])
		}
		if text != "" {
			piece := c
			piece.Text = text
			out = append(out, piece)
		}
	}
	return out
}

// runeCut returns the largest rune boundary at or below n, and never less
// than the end of the first rune.
func runeCut(text string, n int) int {
	end := n
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == 0 {
		_, end = utf8.DecodeRuneInString(text)
	}
	return end
}
