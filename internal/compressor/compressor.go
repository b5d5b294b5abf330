package compressor

import (
	"errors"
	"time"

	"image-compressor-go/internal/codec"
	"image-compressor-go/internal/quality"
)

var (
	// ErrUnsupportedFormat tags images whose detected format cannot be re-encoded.
	ErrUnsupportedFormat = codec.ErrUnsupportedFormat
	// ErrEncode tags codec failures while decoding or encoding.
	ErrEncode = errors.New("encode failed")
	// ErrIO tags filesystem failures while reading or writing.
	ErrIO = errors.New("i/o error")
)

// DestinationResolver maps a source image path to the path the compressed
// copy is written to.
type DestinationResolver func(inputPath string) string

// CompressionResult describes the result of compressing a single file.
type CompressionResult struct {
	InputPath      string       `json:"input_path"`
	OutputPath     string       `json:"output_path,omitempty"`
	Format         codec.Format `json:"format"`
	OriginalSize   int64        `json:"original_size"`
	CompressedSize int64        `json:"compressed_size"`
	Message        string       `json:"message,omitempty"`
	Success        bool         `json:"success"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	Error          error        `json:"-"`
}

// BytesSaved returns the size difference; negative when the output grew.
func (r CompressionResult) BytesSaved() int64 {
	return r.OriginalSize - r.CompressedSize
}

// PercentageSaved returns BytesSaved as a percentage of the original size.
func (r CompressionResult) PercentageSaved() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.BytesSaved()) * 100 / float64(r.OriginalSize)
}

// Compressor defines the interface for image compression.
type Compressor interface {
	// Compress re-encodes one image with the parameters matching its format
	// and writes it to the path chosen by resolve.
	Compress(inputPath string, cfg quality.FormatConfig, resolve DestinationResolver) (CompressionResult, error)
}
