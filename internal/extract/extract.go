// Package extract pulls plain text out of uploaded teaching materials.
//
// Extraction never fails because of a bad file: unreadable or unsupported
// files yield a short notice in place of their text so the teacher can see
// what went wrong in the preview. Only context cancellation is an error.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examdraft/internal/memo"
)

// Notices substituted for text that cannot be extracted.
const (
	NoticePDFEmpty    = "(PDF 可能為純圖片或無可擷取文字)"
	NoticePDFFailed   = "(PDF 讀取失敗：可能加密或純圖片)"
	NoticeDOCXFailed  = "(DOCX 讀取失敗)"
	NoticeDOCLegacy   = "⚠️ 不支援 .doc，請另存為 .docx 或 .pdf 後重傳。"
	NoticeUnsupported = "(不支援的格式)"
)

// DefaultConcurrency bounds how many files are extracted at once.
const DefaultConcurrency = 4

var blankRuns = regexp.MustCompile(`\n\s*\n`)

// File is an uploaded document.
type File struct {
	Name string
	Data []byte
}

// Extractor converts files to text, memoizing per file content.
type Extractor struct {
	limit int
	cache *memo.Cache[string]
}

// New returns an Extractor running at most limit extractions concurrently.
func New(limit int) *Extractor {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Extractor{limit: limit, cache: memo.New[string](0)}
}

// Extract returns the text of all files, each under a "=== 檔案：name ===" header,
// in input order.
func (e *Extractor) Extract(ctx context.Context, files []File) (string, error) {
	parts := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, f := range files {
		g.Go(func() error {
			text, err := e.File(ctx, f)
			if err != nil {
				return fmt.Errorf("extract %s: %w", f.Name, err)
			}
			parts[i] = "=== 檔案：" + f.Name + " ===\n" + text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}

// File returns the normalized text of a single file.
func (e *Extractor) File(ctx context.Context, f File) (string, error) {
	kind := Kind(f.Name, f.Data)
	key := append([]byte(kind+"\x00"), f.Data...)
	if text, ok := e.cache.Get(key); ok {
		return text, nil
	}

	text, err := extractKind(ctx, kind, f.Data)
	if err != nil {
		return "", err
	}
	text = normalize(text)
	e.cache.Put(key, text)

	slog.Debug("extracted text", "file", f.Name, "kind", kind, "bytes", len(f.Data), "chars", len([]rune(text)))
	return text, nil
}

// Kind decides how a file is read: by extension when it has a known one,
// otherwise by sniffing its magic bytes.
func Kind(name string, data []byte) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "pdf", "docx", "doc", "txt", "md":
		return ext
	}

	t, err := filetype.Match(data)
	if err != nil || t == filetype.Unknown {
		if ext == "" && isText(data) {
			return "txt"
		}
		return ext
	}
	switch t.Extension {
	case "pdf", "docx", "doc":
		return t.Extension
	}
	return ext
}

func extractKind(ctx context.Context, kind string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch kind {
	case "pdf":
		if !filetype.Is(data, "pdf") {
			return NoticePDFFailed, nil
		}
		text, err := readPDF(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("pdf extraction failed", "error", err)
			return NoticePDFFailed, nil
		}
		if strings.TrimSpace(pageMarkers.ReplaceAllString(text, "")) == "" {
			return NoticePDFEmpty, nil
		}
		return text, nil

	case "docx":
		text, err := readDOCX(data)
		if err != nil {
			slog.Warn("docx extraction failed", "error", err)
			return NoticeDOCXFailed, nil
		}
		return text, nil

	case "doc":
		return NoticeDOCLegacy, nil

	case "txt", "md":
		return decodeText(data), nil
	}

	return NoticeUnsupported, nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
