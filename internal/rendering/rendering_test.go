package rendering

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, engine := range []string{EngineChrome, EngineWeasyPrint, EngineNone} {
		r, err := New(engine, Options{})
		require.NoError(t, err)
		assert.Equal(t, engine, r.Name())
	}

	r, err := New("", Options{})
	require.NoError(t, err)
	assert.Equal(t, EngineChrome, r.Name())

	_, err = New("latex", Options{})
	assert.Error(t, err)
}

func TestProducesPDF(t *testing.T) {
	assert.False(t, ProducesPDF(HTMLOnly{}))
	assert.False(t, ProducesPDF(nil))
	assert.True(t, ProducesPDF(&ChromeRenderer{}))
}

func TestRenderError(t *testing.T) {
	cause := errors.New("boom")
	err := &RenderError{Engine: EngineChrome, Message: "printing failed", Cause: cause}
	assert.Equal(t, "render error (chrome): printing failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-weasyprint")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func writeHTML(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>x</body></html>"), 0o644))
	return path
}

func TestWeasyPrint_Success(t *testing.T) {
	// The last argument is the output path.
	bin := writeScript(t, `for last; do :; done; echo "%PDF-1.7" > "$last"`)
	w := &WeasyPrintRenderer{Binary: bin}
	assert.True(t, w.Available())

	pdf := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, w.RenderPDF(context.Background(), writeHTML(t), pdf))
	data, err := os.ReadFile(pdf)
	require.NoError(t, err)
	assert.Contains(t, string(data), "%PDF")
}

func TestWeasyPrint_Failure(t *testing.T) {
	bin := writeScript(t, `echo "bad css" >&2; exit 3`)
	w := &WeasyPrintRenderer{Binary: bin}

	err := w.RenderPDF(context.Background(), writeHTML(t), filepath.Join(t.TempDir(), "report.pdf"))
	var rerr *RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "bad css", rerr.Message)
	var exitErr *exec.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestWeasyPrint_Missing(t *testing.T) {
	w := &WeasyPrintRenderer{Binary: filepath.Join(t.TempDir(), "nope")}
	assert.False(t, w.Available())
	err := w.RenderPDF(context.Background(), writeHTML(t), filepath.Join(t.TempDir(), "out.pdf"))
	var rerr *RenderError
	assert.True(t, errors.As(err, &rerr))
}

func TestChrome_MissingHTML(t *testing.T) {
	c := &ChromeRenderer{}
	err := c.RenderPDF(context.Background(), filepath.Join(t.TempDir(), "missing.html"), "out.pdf")
	var rerr *RenderError
	assert.True(t, errors.As(err, &rerr))
}

func TestChrome_RenderPDF(t *testing.T) {
	var bin string
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			bin = p
			break
		}
	}
	if bin == "" {
		t.Skip("no Chrome/Chromium installed")
	}

	pdf := filepath.Join(t.TempDir(), "report.pdf")
	c := &ChromeRenderer{ExecPath: bin}
	require.NoError(t, c.RenderPDF(context.Background(), writeHTML(t), pdf))
	info, err := os.Stat(pdf)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
