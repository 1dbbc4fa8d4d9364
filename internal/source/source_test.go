package source

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestDirSource_LoopsSorted(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "b.jpg"), 20, 10)
	writePNG(t, filepath.Join(dir, "a.png"), 10, 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	src, err := NewDirSource(dir)
	require.NoError(t, err)

	ctx := context.Background()

	// a.png first, then b.jpg, then wraps around.
	img, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	img, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	img, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
}

func TestDirSource_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("not an image"), 0o644))
	writeJPEG(t, filepath.Join(dir, "b.jpg"), 8, 8)

	src, err := NewDirSource(dir)
	require.NoError(t, err)

	img, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestDirSource_EmptyDirectory(t *testing.T) {
	_, err := NewDirSource(t.TempDir())
	assert.Error(t, err)
}

func TestDirSource_AllCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("junk"), 0o644))

	src, err := NewDirSource(dir)
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	assert.Error(t, err)
}

func TestDirSource_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 8, 8)

	src, err := NewDirSource(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTestPattern_FramesDiffer(t *testing.T) {
	src := NewTestPattern(64, 48)
	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 64, first.Bounds().Dx())
	assert.Equal(t, 48, first.Bounds().Dy())

	second, err := src.Next(ctx)
	require.NoError(t, err)

	a := first.(*image.RGBA)
	b := second.(*image.RGBA)
	assert.NotEqual(t, a.Pix, b.Pix)
}

func TestTestPattern_DefaultSize(t *testing.T) {
	src := NewTestPattern(0, 0)
	img, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}
