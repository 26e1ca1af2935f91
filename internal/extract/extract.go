// Package extract turns lab-report documents into the page-joined plain text
// the parser works on.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrNoTextLayer means the document has no extractable text, typically an
	// image-only scan. It is final for that document.
	ErrNoTextLayer       = errors.New("document has no extractable text layer")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEncrypted         = errors.New("document is password protected")
	ErrTooLarge          = errors.New("document too large")
)

// MaxDocumentSize bounds how much of a document is read into memory.
const MaxDocumentSize = 64 << 20

var pdfMagic = []byte("%PDF-")

// Extractor returns the text of one document.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ForName picks an extractor from the file name, falling back to content
// sniffing when the extension is unknown.
func ForName(name string, head []byte) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return PDF{}, nil
	case ".txt", ".text", ".csv", ".tsv", ".md":
		return PlainText{}, nil
	}
	if bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), pdfMagic) {
		return PDF{}, nil
	}
	if len(head) > 0 && !looksBinary(head) {
		return PlainText{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Document reads r fully and extracts its text.
func Document(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxDocumentSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, MaxDocumentSize)
	}
	ex, err := ForName(name, data)
	if err != nil {
		return "", err
	}
	return ex.Extract(ctx, data)
}

// PlainText passes UTF-8 text through and decodes anything else as
// Windows-1252, the usual encoding of exported Spanish lab reports.
type PlainText struct{}

func (PlainText) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := string(data)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode text: %w", err)
		}
		text = string(decoded)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoTextLayer
	}
	return text, nil
}

func looksBinary(head []byte) bool {
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.IndexByte(head, 0) >= 0
}
