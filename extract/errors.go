package extract

import "errors"

var (
	// ErrUnsupportedFormat indicates binary content with no text extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument indicates a document without any text.
	ErrEmptyDocument = errors.New("document has no text")
)
