// Package pdftext extracts text from archived files: PDFs via their embedded
// text layer, plain text files verbatim. Raster formats have no text layer
// and are reported as such so the caller can route them to an external OCR
// engine.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// ErrNoTextLayer is returned for formats this extractor cannot read.
var ErrNoTextLayer = errors.New("pdftext: file has no extractable text layer")

// Extractor reads text layers from files on disk.
type Extractor struct {
	conf   *model.Configuration
	logger *zap.Logger
}

// New creates an extractor. Validation is relaxed so slightly malformed
// scanner output still parses.
func New(logger *zap.Logger) *Extractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{conf: conf, logger: logger}
}

// Extract returns the text content of the file at path along with the page
// count.
func (e *Extractor) Extract(ctx context.Context, path string) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "txt", "text":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", 0, fmt.Errorf("read text file: %w", err)
		}
		return string(data), 1, nil
	case "pdf":
		return e.extractPDF(path)
	default:
		return "", 0, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoTextLayer)
	}
}

var contentPageRe = regexp.MustCompile(`_Content_page_(\d+)\.txt$`)

func (e *Extractor) extractPDF(path string) (string, int, error) {
	pages, err := api.PageCountFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("count pages: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "dockeep-extract-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractContentFile(path, tmpDir, nil, e.conf); err != nil {
		return "", 0, fmt.Errorf("extract content: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", 0, fmt.Errorf("read temp dir: %w", err)
	}

	type page struct {
		nr   int
		text string
	}
	var extracted []page
	for _, entry := range entries {
		m := contentPageRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		nr, _ := strconv.Atoi(m[1])
		raw, err := os.ReadFile(filepath.Join(tmpDir, entry.Name()))
		if err != nil {
			return "", 0, fmt.Errorf("read page content: %w", err)
		}
		extracted = append(extracted, page{nr: nr, text: textFromContent(raw)})
	}
	sort.Slice(extracted, func(i, j int) bool { return extracted[i].nr < extracted[j].nr })

	var parts []string
	for _, p := range extracted {
		if t := strings.TrimSpace(p.text); t != "" {
			parts = append(parts, t)
		}
	}

	text := strings.Join(parts, "\n\n")
	if text == "" {
		e.logger.Debug("pdf has no text layer", zap.String("file", filepath.Base(path)))
		return "", pages, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoTextLayer)
	}
	return text, pages, nil
}
