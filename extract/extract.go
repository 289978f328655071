package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"

	"github.com/poiesic/vectorit/chunking"
)

// Format is the byte-level encoding of a document.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// sniffLen is how many leading bytes are inspected to detect binary content.
const sniffLen = 8000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is the extracted text of a file plus the type the chunker should
// treat it as.
type Document struct {
	Name     string
	Text     string
	Format   Format
	FileType chunking.FileType
	Size     int64 // Size of the raw bytes
	Pages    int   // PDF page count, 0 otherwise
}

// Extractor converts raw document bytes to text.
type Extractor struct {
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// New creates an Extractor.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{logger: slog.Default().With("component", "extract")}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// DetectFormat picks the format from the declared type, the file name and
// finally the content itself.
func DetectFormat(name, declared string, data []byte) Format {
	d := strings.ToLower(strings.TrimSpace(declared))
	switch {
	case strings.HasPrefix(d, "application/pdf"), d == "pdf":
		return FormatPDF
	case strings.HasPrefix(d, "text/html"), strings.HasPrefix(d, "application/xhtml"), d == "html":
		return FormatHTML
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".html", ".htm", ".xhtml":
		return FormatHTML
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	return FormatText
}

// Extract returns the text of data. name and declared are used to choose
// the format and the chunking file type.
func (e *Extractor) Extract(ctx context.Context, name, declared string, data []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := &Document{
		Name:   name,
		Format: DetectFormat(name, declared, data),
		Size:   int64(len(data)),
	}

	var err error
	switch doc.Format {
	case FormatPDF:
		doc.Text, doc.Pages, err = pdfText(ctx, data)
		doc.FileType = chunking.FileTypeText
	case FormatHTML:
		doc.Text, err = htmlText(data)
		doc.FileType = chunking.FileTypeText
	default:
		doc.Text, err = plainText(data)
		doc.FileType = chunking.NormalizeFileType(name, declared)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", name, err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, name)
	}

	e.logger.Debug("text extracted",
		"name", name, "format", doc.Format, "type", doc.FileType, "bytes", doc.Size, "chars", len(doc.Text))
	return doc, nil
}

// plainText decodes UTF-8 text, dropping a byte order mark and normalizing
// line endings.
func plainText(data []byte) (string, error) {
	head := data[:min(len(data), sniffLen)]
	if bytes.IndexByte(head, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", ErrUnsupportedFormat)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return normalizeNewlines(text), nil
}

func htmlText(data []byte) (string, error) {
	text, err := html2text.FromString(string(bytes.TrimPrefix(data, utf8BOM)), html2text.Options{OmitLinks: true})
	if err != nil {
		return "", err
	}
	return normalizeNewlines(text), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
