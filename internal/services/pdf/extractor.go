// -----------------------------------------------------------------------
// PDF Extractor Service - Extract text content from PDF documents
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Extractor implements the PDFExtractor interface using pdfcpu.
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

// Compile-time interface assertion
var _ interfaces.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates a new PDF extractor service.
func NewExtractor(logger arbor.ILogger) *Extractor {
	if logger == nil {
		logger = arbor.NewLogger()
	}

	tempDir := filepath.Join(os.TempDir(), "aestimo-pdf")
	os.MkdirAll(tempDir, 0o755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// ExtractText extracts all text content from the PDF at the given path.
// Non-empty pages are joined with blank lines.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	pages, err := e.ExtractPages(ctx, path, 0)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		if text := strings.TrimSpace(page.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// ExtractPages extracts text content page by page. maxPages limits the
// extraction when positive; zero extracts every page.
func (e *Extractor) ExtractPages(ctx context.Context, path string, maxPages int) ([]interfaces.PDFPageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PDF %s: %w", path, err)
	}

	pageCount := pdfCtx.PageCount
	limit := pageCount
	var selected []string
	if maxPages > 0 && maxPages < pageCount {
		limit = maxPages
		selected = []string{fmt.Sprintf("1-%d", maxPages)}
	}

	outDir, err := os.MkdirTemp(e.tempDir, "pages_")
	if err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, selected, conf); err != nil {
		e.logger.Warn().
			Err(err).
			Str("path", path).
			Msg("PDF content extraction failed, returning empty pages")
		pages := make([]interfaces.PDFPageContent, 0, limit)
		for pageNum := 1; pageNum <= limit; pageNum++ {
			pages = append(pages, interfaces.PDFPageContent{PageNumber: pageNum})
		}
		return pages, nil
	}

	pageTexts := readPageTexts(outDir)
	pages := make([]interfaces.PDFPageContent, 0, limit)
	for pageNum := 1; pageNum <= limit; pageNum++ {
		pages = append(pages, interfaces.PDFPageContent{
			PageNumber: pageNum,
			Text:       pageTexts[pageNum],
		})
	}

	e.logger.Debug().
		Str("path", path).
		Int("pages", len(pages)).
		Msg("Extracted PDF pages")

	return pages, nil
}

// readPageTexts collects extracted page content keyed by page number.
// pdfcpu names content files Content_page_N or page_N depending on version.
func readPageTexts(outDir string) map[int]string {
	texts := make(map[int]string)

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return texts
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(entry.Name(), "page_%d", &pageNum); err != nil {
				continue
			}
		}
		texts[pageNum] = string(content)
	}

	return texts
}

// GetMetadata retrieves PDF metadata without extracting text content.
func (e *Extractor) GetMetadata(ctx context.Context, path string) (*interfaces.PDFMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat PDF %s: %w", path, err)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PDF %s: %w", path, err)
	}

	metadata := &interfaces.PDFMetadata{
		PageCount:   pdfCtx.PageCount,
		FileSize:    info.Size(),
		IsEncrypted: pdfCtx.Encrypt != nil,
	}

	e.logger.Debug().
		Int("page_count", metadata.PageCount).
		Int64("file_size", metadata.FileSize).
		Bool("encrypted", metadata.IsEncrypted).
		Msg("Extracted PDF metadata")

	return metadata, nil
}
