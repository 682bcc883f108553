package rendering

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeRenderer prints the report with headless Chrome. Chrome does not resolve CSS
// target-counter(), so TOC page numbers stay empty; use WeasyPrintRenderer when they matter.
type ChromeRenderer struct {
	ExecPath string
	Timeout  time.Duration
}

// Name implements Renderer.
func (c *ChromeRenderer) Name() string { return EngineChrome }

// RenderPDF implements Renderer.
func (c *ChromeRenderer) RenderPDF(ctx context.Context, htmlPath, pdfPath string) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return &RenderError{Engine: EngineChrome, Message: "failed to resolve HTML path", Cause: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return &RenderError{Engine: EngineChrome, Message: fmt.Sprintf("HTML file not found: %s", abs), Cause: err}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	target := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithDisplayHeaderFooter(false).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		return &RenderError{Engine: EngineChrome, Message: "browser PDF printing failed", Cause: err}
	}

	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return &RenderError{Engine: EngineChrome, Message: "failed to write PDF", Cause: err}
	}
	return nil
}
