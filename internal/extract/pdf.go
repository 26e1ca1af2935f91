package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// PDF extracts the text layer of a PDF, pages joined by newlines. Pages that
// fail to extract are skipped; a document that yields no text at all returns
// ErrNoTextLayer.
type PDF struct{}

func (PDF) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	enc, err := reader.IsEncrypted()
	if err != nil {
		return "", fmt.Errorf("check pdf encryption: %w", err)
	}
	if enc {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil {
			return "", fmt.Errorf("decrypt pdf: %w", err)
		}
		if !ok {
			return "", ErrEncrypted
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("count pdf pages: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page, err := reader.GetPage(i)
		if err != nil {
			logger.Debug().Err(err).Int("page", i).Msg("pdf page unreadable")
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			logger.Debug().Err(err).Int("page", i).Msg("pdf page extractor failed")
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			logger.Debug().Err(err).Int("page", i).Msg("pdf page text failed")
			continue
		}
		pages = append(pages, text)
	}

	joined := strings.Join(pages, "\n")
	if strings.TrimSpace(joined) == "" {
		return "", ErrNoTextLayer
	}
	return joined, nil
}
