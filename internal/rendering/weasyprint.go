package rendering

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// WeasyPrintRenderer shells out to the weasyprint CLI, which supports CSS paged media
// including target-counter() for TOC page numbers.
type WeasyPrintRenderer struct {
	// Binary defaults to "weasyprint" on PATH.
	Binary  string
	Timeout time.Duration
}

// Name implements Renderer.
func (w *WeasyPrintRenderer) Name() string { return EngineWeasyPrint }

func (w *WeasyPrintRenderer) binary() string {
	if w.Binary != "" {
		return w.Binary
	}
	return "weasyprint"
}

// Available reports whether the weasyprint binary can be found.
func (w *WeasyPrintRenderer) Available() bool {
	_, err := exec.LookPath(w.binary())
	return err == nil
}

// RenderPDF implements Renderer.
func (w *WeasyPrintRenderer) RenderPDF(ctx context.Context, htmlPath, pdfPath string) error {
	if _, err := os.Stat(htmlPath); err != nil {
		return &RenderError{Engine: EngineWeasyPrint, Message: fmt.Sprintf("HTML file not found: %s", htmlPath), Cause: err}
	}
	bin, err := exec.LookPath(w.binary())
	if err != nil {
		return &RenderError{Engine: EngineWeasyPrint, Message: "weasyprint is not installed", Cause: err}
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--presentational-hints", htmlPath, pdfPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "weasyprint failed"
		}
		return &RenderError{Engine: EngineWeasyPrint, Message: msg, Cause: err}
	}

	if info, err := os.Stat(pdfPath); err != nil || info.Size() == 0 {
		return &RenderError{Engine: EngineWeasyPrint, Message: "weasyprint produced no output", Cause: err}
	}
	return nil
}
