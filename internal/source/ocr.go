package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/doculens/extraction-engine/internal/domain"
)

// Runner lets tests stub the external OCR command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", name, err, errb.String())
	}
	return out.Bytes(), nil
}

// TesseractClient recognizes text on image-only pages by shelling out
// to a tesseract binary. It is the one external collaborator of the
// pipeline; every call carries a hard timeout and a timeout is treated
// upstream as the page contributing no text.
type TesseractClient struct {
	binary  string
	timeout time.Duration
	runner  Runner
}

// NewTesseractClient creates an OCR client for the given binary.
func NewTesseractClient(binary string, timeout time.Duration) *TesseractClient {
	if binary == "" {
		binary = "tesseract"
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &TesseractClient{
		binary:  binary,
		timeout: timeout,
		runner:  execRunner{},
	}
}

// WithRunner replaces the command runner, for tests.
func (c *TesseractClient) WithRunner(r Runner) *TesseractClient {
	c.runner = r
	return c
}

// Recognize runs OCR over the document and returns recognized text.
// The binary receives the raw bytes via a temp file; tesseract resolves
// the page internally for multi-page inputs.
func (c *TesseractClient) Recognize(ctx context.Context, doc domain.Document, pageIndex int) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "ocr-input-*")
	if err != nil {
		return "", domain.PageError("create ocr temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.Content); err != nil {
		tmp.Close()
		return "", domain.PageError("write ocr temp file", err)
	}
	tmp.Close()

	out, err := c.runner.Run(runCtx, c.binary, tmp.Name(), "stdout", "--psm", "1")
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", domain.TimeoutError(
				fmt.Sprintf("ocr exceeded %s on page %d", c.timeout, pageIndex), err)
		}
		return "", domain.PageError(filepath.Base(c.binary)+" failed", err)
	}

	return string(out), nil
}
