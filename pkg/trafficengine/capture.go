package trafficengine

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// captureFrame copies the frame and writes it as a PNG in the background.
func (e *Engine) captureFrame(img *ebiten.Image, timestamp time.Time) {
	if e.FrameCaptureDir == "" {
		return
	}
	if err := os.MkdirAll(e.FrameCaptureDir, 0o755); err != nil {
		log.Printf("[CAPTURE] Error creating capture directory: %v", err)
		return
	}
	path := filepath.Join(e.FrameCaptureDir, fmt.Sprintf("packets-%s.png", timestamp.Format("20060102-150405.000")))

	// ReadPixels must happen on the game goroutine; encoding does not.
	rgba := image.NewRGBA(img.Bounds())
	img.ReadPixels(rgba.Pix)

	go func() {
		if err := writePNG(path, rgba); err != nil {
			log.Printf("[CAPTURE] %v", err)
			return
		}
		log.Printf("[CAPTURE] Captured frame: %s", path)
	}()
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode capture: %w", err)
	}
	return f.Close()
}
