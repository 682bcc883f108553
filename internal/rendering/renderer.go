package rendering

import (
	"context"
	"fmt"
	"time"
)

// Engine names accepted by New.
const (
	EngineChrome     = "chrome"
	EngineWeasyPrint = "weasyprint"
	EngineNone       = "none"
)

// DefaultTimeout bounds a single PDF render.
const DefaultTimeout = 2 * time.Minute

// Renderer converts an HTML file into a PDF file.
type Renderer interface {
	// Name is the engine name.
	Name() string
	// RenderPDF reads htmlPath and writes pdfPath.
	RenderPDF(ctx context.Context, htmlPath, pdfPath string) error
}

// Options configures renderer construction.
type Options struct {
	// ExecPath overrides the browser or weasyprint binary.
	ExecPath string
	Timeout  time.Duration
}

// New returns the renderer for engine.
func New(engine string, opts Options) (Renderer, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch engine {
	case EngineChrome, "":
		return &ChromeRenderer{ExecPath: opts.ExecPath, Timeout: opts.Timeout}, nil
	case EngineWeasyPrint:
		return &WeasyPrintRenderer{Binary: opts.ExecPath, Timeout: opts.Timeout}, nil
	case EngineNone:
		return HTMLOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q (expected %s, %s or %s)", engine, EngineChrome, EngineWeasyPrint, EngineNone)
	}
}

// HTMLOnly skips PDF output.
type HTMLOnly struct{}

// Name implements Renderer.
func (HTMLOnly) Name() string { return EngineNone }

// RenderPDF does nothing.
func (HTMLOnly) RenderPDF(context.Context, string, string) error { return nil }

// ProducesPDF reports whether r writes a PDF file.
func ProducesPDF(r Renderer) bool {
	if r == nil {
		return false
	}
	_, none := r.(HTMLOnly)
	return !none
}
