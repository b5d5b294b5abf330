package compressor

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"image-compressor-go/internal/codec"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/quality"

	"github.com/sirupsen/logrus"
)

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	codec     codec.Codec
	preserver metadata.Preserver
	log       *logrus.Logger
}

// NewDefaultCompressor creates a new DefaultCompressor. preserver may be nil,
// in which case compressed images carry no copied metadata.
func NewDefaultCompressor(log *logrus.Logger, c codec.Codec, preserver metadata.Preserver) *DefaultCompressor {
	if c == nil {
		c = codec.NewImagingCodec()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &DefaultCompressor{
		codec:     c,
		preserver: preserver,
		log:       log,
	}
}

// Compress reads, re-encodes and writes a single image. A file left behind
// by a failed write is not removed.
func (c *DefaultCompressor) Compress(inputPath string, cfg quality.FormatConfig, resolve DestinationResolver) (CompressionResult, error) {
	res := CompressionResult{
		InputPath: inputPath,
		StartedAt: time.Now(),
	}
	fail := func(err error) (CompressionResult, error) {
		res.Error = err
		res.Message = err.Error()
		res.FinishedAt = time.Now()
		return res, err
	}
	entry := logger.WithFileOperation(c.log, inputPath, "compress")

	info, err := c.codec.Inspect(inputPath)
	if err != nil {
		return fail(classify(err, "read metadata"))
	}
	res.Format = info.Format

	stat, err := os.Stat(inputPath)
	if err != nil {
		return fail(fmt.Errorf("%w: stat source: %w", ErrIO, err))
	}
	res.OriginalSize = stat.Size()

	opts, err := encodeOptions(info, cfg)
	if err != nil {
		return fail(err)
	}

	outPath := resolve(inputPath)
	res.OutputPath = outPath
	if sameFile(inputPath, stat, outPath) {
		return fail(fmt.Errorf("%w: cannot use same file for input and output: %s", ErrIO, outPath))
	}

	entry.WithFields(logrus.Fields{
		"format": info.Format.String(),
		"width":  info.Width,
		"height": info.Height,
		"output": outPath,
	}).Debug("Compressing image")

	img, err := c.codec.Decode(inputPath, info)
	if err != nil {
		return fail(classify(err, "decode"))
	}

	if err := c.write(outPath, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := c.codec.Encode(w, img, info.Format, opts); err != nil {
			return fmt.Errorf("%w: %w", ErrEncode, err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("%w: flush: %w", ErrIO, err)
		}
		return nil
	}); err != nil {
		return fail(err)
	}

	if c.preserver != nil {
		if err := c.preserver.Preserve(inputPath, outPath); err != nil {
			res.Message = fmt.Sprintf("warning: metadata not copied: %v", err)
			entry.Warnf("Metadata not copied: %v", err)
		}
	}

	outStat, err := os.Stat(outPath)
	if err != nil {
		return fail(fmt.Errorf("%w: stat output: %w", ErrIO, err))
	}
	res.CompressedSize = outStat.Size()
	res.Success = true
	res.FinishedAt = time.Now()
	if res.Message == "" {
		res.Message = "Image compressed"
	}
	return res, nil
}

// write creates outPath and hands it to encode.
func (c *DefaultCompressor) write(outPath string, encode func(f *os.File) error) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: create output: %w", ErrIO, err)
	}
	encErr := encode(out)
	closeErr := out.Close()
	if encErr != nil {
		return encErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close output: %w", ErrIO, closeErr)
	}
	return nil
}

// encodeOptions selects the parameters for the detected format.
func encodeOptions(info codec.Info, cfg quality.FormatConfig) (codec.EncodeOptions, error) {
	switch info.Format {
	case codec.JPEG:
		return codec.EncodeOptions{Quality: cfg.JPEG.Quality}, nil
	case codec.WebP:
		return codec.EncodeOptions{Quality: cfg.WebP.Quality}, nil
	case codec.PNG:
		return codec.EncodeOptions{CompressionLevel: cfg.PNG.CompressionLevel}, nil
	default:
		name := info.Name
		if name == "" {
			name = "unknown"
		}
		return codec.EncodeOptions{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// classify tags a codec error as ErrIO for filesystem failures and ErrEncode otherwise.
func classify(err error, op string) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrEncode, op, err)
}

// sameFile reports whether dst names the source, either by path or by
// pointing at the same inode through a link.
func sameFile(src string, srcInfo os.FileInfo, dst string) bool {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return true
	}
	dstInfo, err := os.Stat(dst)
	return err == nil && os.SameFile(srcInfo, dstInfo)
}
