package pdfsource

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"strings"

	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/geometry"
	"github.com/dokmap/dokmap/internal/logger"
)

// defaultCacheSize bounds the recognized-text and rendered-page caches.
const defaultCacheSize = 64

// Source layers text acquisition for the extraction engine: embedded text
// layer first, image recognition as the fallback. Rendered pages and
// recognized page text are cached keyed on path, page, resolution and file
// modification time.
type Source struct {
	reader     *TextLayerReader
	rasterizer Rasterizer
	recognizer Recognizer
	textCache  *Cache[string]
	pageCache  *Cache[image.Image]
	log        logger.Logger
}

// NewSource composes a source from its collaborators. rasterizer and
// recognizer may be nil when the host system lacks the external tools; the
// text layer still works and recognition requests report what is missing.
func NewSource(reader *TextLayerReader, rasterizer Rasterizer, recognizer Recognizer, log logger.Logger) *Source {
	return &Source{
		reader:     reader,
		rasterizer: rasterizer,
		recognizer: recognizer,
		textCache:  NewCache[string](defaultCacheSize),
		pageCache:  NewCache[image.Image](defaultCacheSize),
		log:        log,
	}
}

// DocumentText returns the full text of a document: the embedded text layer
// when present, otherwise recognized page images. When recognition fails on
// some pages but text was obtained, the partial text is returned together
// with the error so the caller can degrade to a warning.
func (s *Source) DocumentText(ctx context.Context, path, language string) (string, error) {
	if err := s.reader.Validate(path); err != nil {
		return "", err
	}

	text, err := s.reader.Text(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	return s.recognizeAllPages(ctx, path, language)
}

// RegionText recognizes the text inside one normalized page region.
func (s *Source) RegionText(ctx context.Context, path string, pageIndex int, region geometry.NormalizedRect, language string) (string, error) {
	if s.rasterizer == nil {
		return "", extract.RecognitionUnavailableError("pdftoppm", nil)
	}
	if s.recognizer == nil {
		return "", extract.RecognitionUnavailableError("tesseract", nil)
	}
	if err := region.Validate(); err != nil {
		return "", extract.InvalidCoordinatesError("region", err)
	}

	img, err := s.renderPageCached(ctx, path, pageIndex, regionDPI)
	if err != nil {
		return "", err
	}

	bounds := img.Bounds()
	pixelRect := region.Denormalize(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	crop := cropImage(img, pixelRect)

	text, err := s.recognizer.Recognize(ctx, crop, language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// PageCount exposes the reader's page count for callers that iterate pages.
func (s *Source) PageCount(path string) (int, error) {
	return s.reader.PageCount(path)
}

func (s *Source) recognizeAllPages(ctx context.Context, path, language string) (string, error) {
	if s.rasterizer == nil {
		return "", extract.RecognitionUnavailableError("pdftoppm", nil)
	}
	if s.recognizer == nil {
		return "", extract.RecognitionUnavailableError("tesseract", nil)
	}

	pages, err := s.reader.PageCount(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", extract.UnreadableError(path, err)
	}

	var parts []string
	var firstErr error
	for pageIndex := 0; pageIndex < pages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return strings.Join(parts, "\n"), err
		}

		key := CacheKey(path, pageIndex, fullPageDPI, info.ModTime())
		if cached, ok := s.textCache.Get(key); ok {
			parts = append(parts, cached)
			continue
		}

		img, err := s.rasterizer.RenderPage(ctx, path, pageIndex, fullPageDPI)
		if err != nil {
			s.log.Warn("cannot render page %d of %s: %v", pageIndex+1, path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		text, err := s.recognizer.Recognize(ctx, img, language)
		if err != nil {
			s.log.Warn("recognition failed on page %d of %s: %v", pageIndex+1, path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.textCache.Put(key, text)
		parts = append(parts, text)
	}

	joined := strings.Join(parts, "\n")
	if firstErr != nil {
		return joined, firstErr
	}
	if strings.TrimSpace(joined) == "" && pages > 0 {
		return "", extract.RecognitionFailedError(path, fmt.Errorf("no text recognized on any of %d pages", pages))
	}
	return joined, nil
}

func (s *Source) renderPageCached(ctx context.Context, path string, pageIndex, dpi int) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, extract.NotFoundError(path)
		}
		return nil, extract.UnreadableError(path, err)
	}

	key := CacheKey(path, pageIndex, dpi, info.ModTime())
	if img, ok := s.pageCache.Get(key); ok {
		return img, nil
	}

	img, err := s.rasterizer.RenderPage(ctx, path, pageIndex, dpi)
	if err != nil {
		return nil, err
	}
	s.pageCache.Put(key, img)
	return img, nil
}

// cropImage copies the given pixel rectangle out of an image. Copying
// rather than sub-imaging keeps cached pages immutable regardless of what
// the recognizer does with the crop.
func cropImage(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}
