// Package export renders the annotations of a document as a report.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"annotate/api/internal/annotation"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts a case-insensitive format name; empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatHTML, nil
	case FormatHTML, FormatPDF, FormatDOCX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// Request contains parameters for an export operation
type Request struct {
	DocumentURI string
	Group       string
	Requester   annotation.UserRef
	Format      Format
}

// Thread is a top-level annotation together with its replies, oldest first.
type Thread struct {
	ID      string
	Author  string
	Text    string
	Tags    []string
	Shared  bool
	Created time.Time
	Updated time.Time
	Replies []Reply
}

// Reply represents a thread reply
type Reply struct {
	ID      string
	Author  string
	Text    string
	Created time.Time
}

// Report is everything the requester can see on one document.
type Report struct {
	DocumentURI string
	Group       string
	GeneratedAt time.Time
	Threads     []Thread
	// Inconsistent is set when any page was read from a changing store.
	Inconsistent bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for unknown export formats.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
