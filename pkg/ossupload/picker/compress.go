package picker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"github.com/tendant/oss-upload/pkg/ossupload"
)

const (
	// DefaultMaxDimension bounds the longer side of a compressed image
	DefaultMaxDimension = 1280

	// DefaultJPEGQuality is used when re-encoding JPEG images
	DefaultJPEGQuality = 80
)

// Compressor wraps a Picker and, when SizeCompressed is requested, replaces large
// JPEG/PNG picks with a downscaled copy written to TempDir. Other files pass through.
type Compressor struct {
	Picker       Picker
	MaxDimension uint
	Quality      int
	TempDir      string

	mu      sync.Mutex
	created []string
}

func NewCompressor(p Picker) *Compressor {
	return &Compressor{
		Picker:       p,
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultJPEGQuality,
	}
}

func (c *Compressor) Choose(ctx context.Context, opts ChooseOptions) ([]ossupload.File, error) {
	files, err := c.Picker.Choose(ctx, opts)
	if err != nil || opts.SizeType != SizeCompressed {
		return files, err
	}

	out := make([]ossupload.File, 0, len(files))
	var made []string
	for _, f := range files {
		compressed, err := c.compress(f)
		if err != nil {
			for _, path := range made {
				os.Remove(path)
			}
			return nil, err
		}
		if compressed.Path != f.Path {
			made = append(made, compressed.Path)
		}
		out = append(out, compressed)
	}

	c.mu.Lock()
	c.created = append(c.created, made...)
	c.mu.Unlock()
	return out, nil
}

// Cleanup removes the compressed copies handed out so far.
func (c *Compressor) Cleanup() error {
	c.mu.Lock()
	created := c.created
	c.created = nil
	c.mu.Unlock()

	var errs []error
	for _, path := range created {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Compressor) compress(f ossupload.File) (ossupload.File, error) {
	ext := strings.ToLower(filepath.Ext(f.Path))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return f, nil
	}

	src, err := os.Open(f.Path)
	if err != nil {
		return f, fmt.Errorf("failed to open image: %w", err)
	}
	img, format, err := image.Decode(src)
	src.Close()
	if err != nil {
		// not decodable, upload as picked
		return f, nil
	}

	maxDim := c.MaxDimension
	if maxDim == 0 {
		maxDim = DefaultMaxDimension
	}
	bounds := img.Bounds()
	if uint(bounds.Dx()) <= maxDim && uint(bounds.Dy()) <= maxDim {
		return f, nil
	}

	thumb := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)

	dst, err := os.CreateTemp(c.TempDir, "compressed-*"+ext)
	if err != nil {
		return f, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer dst.Close()

	switch format {
	case "png":
		err = png.Encode(dst, thumb)
	default:
		quality := c.Quality
		if quality <= 0 {
			quality = DefaultJPEGQuality
		}
		err = jpeg.Encode(dst, thumb, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		os.Remove(dst.Name())
		return f, fmt.Errorf("failed to encode image: %w", err)
	}

	info, err := dst.Stat()
	if err != nil {
		os.Remove(dst.Name())
		return f, fmt.Errorf("failed to stat compressed image: %w", err)
	}

	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	return ossupload.File{
		Path: dst.Name(),
		Name: name,
		Size: info.Size(),
		Type: f.Type,
	}, nil
}
