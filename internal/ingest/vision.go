package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"time"

	"olympus/internal/llm"
	"olympus/internal/logging"
)

// =============================================================================
// IMAGE CAPTIONING
// =============================================================================

// describeImage captions an image through the vision model. Oversized images
// are downscaled first; transient failures are retried with exponential
// backoff. On total failure a stub description is returned so the file is
// still indexed and findable by name.
func (p *Pipeline) describeImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	if resized, err := downscale(data, p.cfg.ImageMaxDim); err == nil {
		data = resized
	} else {
		logging.IngestDebug("resize failed for %s, sending original: %v", path, err)
	}

	prompt := `Describe this image in detail: its subject, any visible text, people, objects, setting, and apparent purpose. Write 3-6 sentences.`

	retries := p.cfg.ImageRetries
	if retries <= 0 {
		retries = 5
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter.
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			delay += time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := p.client.Complete(ctx, llm.Request{
			Model:  p.visionModel,
			Prompt: prompt,
			Images: [][]byte{data},
		})
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Text, nil
	}

	logging.Ingest("vision captioning failed for %s after %d attempts: %v", path, retries, lastErr)
	return "", fmt.Errorf("vision captioning failed: %w", lastErr)
}

// stubImageSummary is the total-failure fallback: the file still gets a
// record so filename search finds it.
func stubImageSummary(filename string) string {
	return fmt.Sprintf("Image file %s. Visual content could not be analyzed.", filename)
}

// downscale re-encodes images whose longest side exceeds maxDim, shrinking
// with box sampling. Returns the original bytes when already small enough.
func downscale(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return data, nil
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		srcY := bounds.Min.Y + y*h/newH
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + x*w/newW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
