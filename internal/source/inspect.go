package source

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Limits documented for the read API.
const (
	MinDimension = 50
	MaxDimension = 10000
	MaxBytes     = 50 << 20
)

var supportedFormats = map[string]struct{}{
	"jpeg": {},
	"png":  {},
	"bmp":  {},
	"tiff": {},
}

// Info is what can be learned about an image without decoding its pixels.
type Info struct {
	Format string
	Width  int
	Height int
	Bytes  int
}

// Inspect reads the image header.
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{Bytes: len(data)}, fmt.Errorf("decode image config: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height, Bytes: len(data)}, nil
}

// Warnings lists the service limits this image is likely to hit. The service has the final say.
func (i Info) Warnings() []string {
	var w []string
	if _, ok := supportedFormats[i.Format]; !ok && i.Format != "" {
		w = append(w, fmt.Sprintf("format %s may not be accepted", i.Format))
	}
	if i.Width != 0 && (i.Width < MinDimension || i.Height < MinDimension) {
		w = append(w, fmt.Sprintf("image %dx%d is below %dpx", i.Width, i.Height, MinDimension))
	}
	if i.Width > MaxDimension || i.Height > MaxDimension {
		w = append(w, fmt.Sprintf("image %dx%d exceeds %dpx", i.Width, i.Height, MaxDimension))
	}
	if i.Bytes > MaxBytes {
		w = append(w, fmt.Sprintf("image is %d bytes, limit is %d", i.Bytes, MaxBytes))
	}
	return w
}
