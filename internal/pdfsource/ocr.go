package pdfsource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/dokmap/dokmap/internal/extract"
)

const (
	// fullPageDPI is the render resolution for whole-page recognition.
	fullPageDPI = 300
	// regionDPI is the render resolution for region crops. Lower than the
	// full-page pass since crops are recognized individually.
	regionDPI = 200
)

// Rasterizer renders one page of a document to an image.
type Rasterizer interface {
	RenderPage(ctx context.Context, path string, pageIndex, dpi int) (image.Image, error)
}

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, language string) (string, error)
}

// PopplerRasterizer renders pages with the pdftoppm executable.
type PopplerRasterizer struct {
	binary string
}

// NewPopplerRasterizer locates pdftoppm on PATH.
func NewPopplerRasterizer() (*PopplerRasterizer, error) {
	binary, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, extract.RecognitionUnavailableError("pdftoppm", err)
	}
	return &PopplerRasterizer{binary: binary}, nil
}

// RenderPage renders one zero-indexed page to a PNG and decodes it.
func (p *PopplerRasterizer) RenderPage(ctx context.Context, path string, pageIndex, dpi int) (image.Image, error) {
	dir, err := os.MkdirTemp("", "dokmap-render-*")
	if err != nil {
		return nil, extract.RecognitionFailedError(path, err)
	}
	defer os.RemoveAll(dir)

	page := strconv.Itoa(pageIndex + 1)
	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, p.binary,
		"-png", "-r", strconv.Itoa(dpi), "-f", page, "-l", page, "-singlefile",
		path, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, extract.RecognitionFailedError(path, fmt.Errorf("pdftoppm: %v: %s", err, stderr.String()))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, extract.RecognitionFailedError(path, fmt.Errorf("pdftoppm produced no output: %w", err))
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, extract.RecognitionFailedError(path, fmt.Errorf("cannot decode rendered page: %w", err))
	}
	return img, nil
}

// TesseractRecognizer recognizes text with the tesseract executable.
type TesseractRecognizer struct {
	binary string
}

// NewTesseractRecognizer locates tesseract on PATH.
func NewTesseractRecognizer() (*TesseractRecognizer, error) {
	binary, err := exec.LookPath("tesseract")
	if err != nil {
		return nil, extract.RecognitionUnavailableError("tesseract", err)
	}
	return &TesseractRecognizer{binary: binary}, nil
}

// Recognize writes the image to a temporary PNG and runs tesseract over it
// with the given language tag, for example "swe+eng".
func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image, language string) (string, error) {
	dir, err := os.MkdirTemp("", "dokmap-ocr-*")
	if err != nil {
		return "", extract.RecognitionFailedError("", err)
	}
	defer os.RemoveAll(dir)

	imgPath := filepath.Join(dir, "region.png")
	f, err := os.Create(imgPath)
	if err != nil {
		return "", extract.RecognitionFailedError("", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", extract.RecognitionFailedError("", fmt.Errorf("cannot encode image: %w", err))
	}
	if err := f.Close(); err != nil {
		return "", extract.RecognitionFailedError("", err)
	}

	cmd := exec.CommandContext(ctx, t.binary, imgPath, "stdout", "-l", language)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", extract.RecognitionFailedError("", fmt.Errorf("tesseract: %v: %s", err, stderr.String()))
	}
	return stdout.String(), nil
}
