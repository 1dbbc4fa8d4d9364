// Package source provides frame producers for the publish command:
// image directories played in a loop and a synthetic test pattern.
package source

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Decoders for the formats a frame directory may contain.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// FrameSource produces frames for a publisher.
type FrameSource interface {
	// Next returns the next frame. It may block until one is due; the
	// context bounds the wait.
	Next(ctx context.Context) (image.Image, error)
}

// DirSource plays the images in a directory as an endless loop,
// sorted by file name.
type DirSource struct {
	files []string
	pos   int
}

// imageExtensions are the file types a frame directory may contain.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// NewDirSource scans dir for image files. It fails when the directory
// holds no usable images.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(files)

	return &DirSource{files: files}, nil
}

// Next decodes and returns the next image in the loop. Files that fail
// to decode are skipped; Next fails only when every file is unusable.
func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	for attempts := 0; attempts < len(s.files); attempts++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := s.files[s.pos]
		s.pos = (s.pos + 1) % len(s.files)

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			continue
		}
		return img, nil
	}
	return nil, fmt.Errorf("no decodable image files remain")
}

// TestPattern generates a moving gradient so the relay can be exercised
// without any real camera.
type TestPattern struct {
	width  int
	height int
	tick   uint8
}

// NewTestPattern creates a pattern generator at the given size.
func NewTestPattern(width, height int) *TestPattern {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &TestPattern{width: width, height: height}
}

// Next renders the next pattern frame. The gradient shifts every call
// so consecutive frames differ visibly.
func (s *TestPattern) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(x) + s.tick
			img.Pix[i+1] = uint8(y) + s.tick
			img.Pix[i+2] = s.tick
			img.Pix[i+3] = 0xFF
		}
	}
	s.tick += 3
	return img, nil
}
