// Package codec wraps the image libraries used to inspect, decode and
// re-encode images. Only jpeg, webp and png can be written; every other
// decodable format is reported as Unsupported.
package codec

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"image-compressor-go/internal/metadata"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned when encoding is requested for a format
// outside the closed set of writable formats.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// webpMethod is the libwebp effort level (0 fast, 6 slow).
const webpMethod = 4

// Format is the encoded format of an image.
type Format int

const (
	Unsupported Format = iota
	JPEG
	WebP
	PNG
)

// String returns the lowercase format tag.
func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case WebP:
		return "webp"
	case PNG:
		return "png"
	default:
		return "unsupported"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ParseFormat maps a decoder name as returned by image.DecodeConfig to a Format.
func ParseFormat(name string) Format {
	switch strings.ToLower(name) {
	case "jpeg", "jpg":
		return JPEG
	case "webp":
		return WebP
	case "png":
		return PNG
	default:
		return Unsupported
	}
}

// Info describes an image as read from its header.
type Info struct {
	Format      Format
	Name        string // decoder name, e.g. "gif"
	Width       int
	Height      int
	Orientation int
}

// EncodeOptions carries the parameters for a single encode.
type EncodeOptions struct {
	Quality          int
	CompressionLevel int
}

// Codec is the image capability used by the compressor.
type Codec interface {
	Inspect(path string) (Info, error)
	Decode(path string, info Info) (image.Image, error)
	Encode(w io.Writer, img image.Image, format Format, opts EncodeOptions) error
}

// ImagingCodec implements Codec on top of disintegration/imaging and gen2brain/webp.
type ImagingCodec struct{}

// NewImagingCodec returns a new ImagingCodec.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// Inspect reads the image header. Content that no registered decoder
// recognises yields an Unsupported Info and no error.
func (c *ImagingCodec) Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	cfg, name, err := image.DecodeConfig(bufio.NewReader(f))
	if errors.Is(err, image.ErrFormat) {
		return Info{Format: Unsupported, Orientation: 1}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("decode config: %w", err)
	}

	info := Info{
		Format:      ParseFormat(name),
		Name:        name,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Orientation: 1,
	}
	if info.Format == JPEG {
		info.Orientation = metadata.ReadOrientation(path)
	}
	return info, nil
}

// Decode loads the full image and applies the EXIF orientation from info.
func (c *ImagingCodec) Decode(path string, info Info) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return applyOrientation(img, info.Orientation), nil
}

// Encode writes img to w in the given format.
func (c *ImagingCodec) Encode(w io.Writer, img image.Image, format Format, opts EncodeOptions) error {
	switch format {
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality))
	case PNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(pngCompressionLevel(opts.CompressionLevel)))
	case WebP:
		return webp.Encode(w, img, webp.Options{Quality: opts.Quality, Method: webpMethod})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// pngCompressionLevel maps a zlib effort (0-9) onto the encoder presets
// exposed by image/png.
func pngCompressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// applyOrientation rotates or flips img so that it displays upright for
// the given EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
