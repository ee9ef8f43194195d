// Package notes reads case-note text from the supported source formats.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/ledongthuc/pdf"
)

// ErrEmptyNote is returned when a source yields no text.
var ErrEmptyNote = errors.New("note has no text")

type Config struct {
	MaxPages int   // 0 = no limit
	MaxBytes int64 // 0 = no limit; larger files are rejected
}

// Note is the text of one case note.
type Note struct {
	Path     string
	Text     string
	Pages    int
	Method   string // "text" | "pdf-text"
	Duration time.Duration
}

type Reader struct {
	cfg    Config
	logger *slog.Logger
}

func NewReader(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{cfg: cfg, logger: logger}
}

// Read picks a strategy based on file extension.
func (r *Reader) Read(ctx context.Context, path string) (Note, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))

	if err := ctx.Err(); err != nil {
		return Note{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Note{}, fmt.Errorf("stat note: %w", err)
	}
	if st.IsDir() {
		return Note{}, fmt.Errorf("note %s is a directory", path)
	}
	if r.cfg.MaxBytes > 0 && st.Size() > r.cfg.MaxBytes {
		return Note{}, fmt.Errorf("note %s is %d bytes, limit %d", path, st.Size(), r.cfg.MaxBytes)
	}

	var note Note
	switch ext {
	case constants.ExtTXT:
		note, err = r.readText(path)
	case constants.ExtPDF:
		note, err = r.readPDF(path)
	default:
		r.logger.Error("notes.read.unsupported_extension", "path", path, "extension", ext)
		return Note{}, fmt.Errorf("unsupported extension: %q", ext)
	}
	if err != nil {
		return Note{}, err
	}

	note.Path = path
	note.Text = strings.TrimSpace(note.Text)
	note.Duration = time.Since(start)
	if note.Text == "" {
		return Note{}, fmt.Errorf("%s: %w", path, ErrEmptyNote)
	}
	r.logger.Debug("notes.read.ok", "path", path, "method", note.Method, "pages", note.Pages, "chars", len(note.Text))
	return note, nil
}

func (r *Reader) readText(path string) (Note, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Note{}, fmt.Errorf("read note: %w", err)
	}
	if !utf8.Valid(b) {
		return Note{}, fmt.Errorf("note %s is not valid UTF-8", path)
	}
	return Note{Text: string(b), Pages: 1, Method: "text"}, nil
}

func (r *Reader) readPDF(path string) (Note, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Note{}, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	if r.cfg.MaxPages > 0 && total > r.cfg.MaxPages {
		total = r.cfg.MaxPages
	}

	var b strings.Builder
	pages := 0
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			r.logger.Warn("notes.read.pdf_page_failed", "path", path, "page", i, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // page break marker
		}
		b.WriteString(text)
		pages++
	}
	return Note{Text: b.String(), Pages: pages, Method: "pdf-text"}, nil
}
