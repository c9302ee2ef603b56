package parser

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	nonceSize  = 16
	tagSize    = 16
	kdfRounds  = 100000
	aesKeySize = 32
)

type jsonlEntry struct {
	Messages []jsonlMessage `json:"messages"`
}

type jsonlMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DecryptFile decrypts an AES-256-GCM file laid out as
// salt(16) | nonce(16) | tag(16) | ciphertext, keyed by PBKDF2-SHA256.
func DecryptFile(path string, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Decrypt(data, password)
}

func Decrypt(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("decrypt: empty password")
	}
	if len(data) < saltSize+nonceSize+tagSize {
		return nil, errors.New("decrypt: input too small")
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	tag := data[saltSize+nonceSize : saltSize+nonceSize+tagSize]
	ciphertext := data[saltSize+nonceSize+tagSize:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	// Open wants the tag appended to the ciphertext.
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfRounds, aesKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// ParseQAJSONL turns chat-format JSONL lines into question/answer passages,
// one per user turn followed by an assistant turn. Malformed lines are skipped.
func ParseQAJSONL(source string, data []byte) ([]Chunk, error) {
	var chunks []Chunk

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry jsonlEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}

		var question string
		for _, msg := range entry.Messages {
			content := strings.TrimSpace(msg.Content)
			switch msg.Role {
			case "user":
				question = content
			case "assistant":
				if question != "" && content != "" {
					chunks = append(chunks, Chunk{Source: source, Text: "Q: " + question + " A: " + content})
				}
				question = ""
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", source, err)
	}
	return chunks, nil
}
