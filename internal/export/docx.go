package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	docxMimeType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	pandocTimeout = 30 * time.Second
)

// pandocArgs converts stdin HTML to a DOCX on stdout. The report fields
// become document properties so Word shows the right title and date.
func pandocArgs(report Report) []string {
	return []string{
		"--from", "html",
		"--to", "docx",
		"--standalone",
		"--metadata", "title=Annotations on " + report.DocumentURI,
		"--metadata", "subject=" + report.DocumentURI,
		"--metadata", "date=" + report.GeneratedAt.UTC().Format(time.RFC3339),
		"--output", "-",
	}
}

func exportDOCX(ctx context.Context, report Report, html, title string) (*Result, error) {
	bin, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(ctx, pandocTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, pandocArgs(report)...)
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("pandoc: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("run pandoc: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, errors.New("pandoc produced no output")
	}

	return &Result{
		Data:     stdout.Bytes(),
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: docxMimeType,
	}, nil
}
