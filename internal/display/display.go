// Package display renders the human-readable narration of a batch run.
package display

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/statistics"

	"github.com/schollz/progressbar/v3"
)

const lineWidth = 50

// Reporter prints run progress to out. A progress bar on barOut replaces
// the per-image lines when enabled.
type Reporter struct {
	out     io.Writer
	barOut  io.Writer
	quiet   bool
	showBar bool
	bar     *progressbar.ProgressBar
}

// NewReporter returns a Reporter. quiet suppresses everything except the
// final summary.
func NewReporter(out, barOut io.Writer, quiet, showBar bool) *Reporter {
	return &Reporter{out: out, barOut: barOut, quiet: quiet, showBar: showBar}
}

// Intro prints the run header.
func (r *Reporter) Intro(imagesPath, outputPath string) {
	if r.quiet {
		return
	}
	fmt.Fprintln(r.out, strings.Repeat("=", lineWidth))
	fmt.Fprintln(r.out, "IMAGE COMPRESSOR")
	fmt.Fprintln(r.out, strings.Repeat("=", lineWidth))
	fmt.Fprintf(r.out, "Images path: %s\n", imagesPath)
	if outputPath == "" {
		fmt.Fprintln(r.out, "Output path: next to originals (compressed-<name>)")
	} else {
		fmt.Fprintf(r.out, "Output path: %s\n", outputPath)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Scanning directory for images...")
}

// Found prints the candidate count and starts the progress bar.
func (r *Reporter) Found(count int) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "Found %d images.\n\n", count)
	fmt.Fprintln(r.out, strings.Repeat("-", lineWidth))
	fmt.Fprintln(r.out, "\nCompressing images...")
	fmt.Fprintln(r.out)

	if r.showBar {
		r.bar = progressbar.NewOptions(count,
			progressbar.OptionSetWriter(r.barOut),
			progressbar.OptionSetDescription("Compressing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "#",
				SaucerPadding: "-",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
}

// Result reports one finished image.
func (r *Reporter) Result(res compressor.CompressionResult) {
	if r.quiet {
		return
	}
	if r.bar != nil {
		r.bar.Describe(filepath.Base(res.InputPath))
		_ = r.bar.Add(1)
		return
	}
	fmt.Fprintln(r.out, FormatResult(res))
}

// Conclusion prints the final summary and the failure list.
func (r *Reporter) Conclusion(s *statistics.Summary) {
	if r.bar != nil {
		_ = r.bar.Finish()
		fmt.Fprintln(r.barOut)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, strings.Repeat("-", lineWidth))
	fmt.Fprintf(r.out, "Compressed %d of %d images.\n\n", s.GetProcessed(), s.Candidates)
	fmt.Fprintln(r.out, s.GetSummary())
	if len(s.GetFailures()) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprint(r.out, s.GetErrorSummary())
	}
}

// Candidates lists the images a run would compress.
func (r *Reporter) Candidates(files []string) {
	for _, f := range files {
		fmt.Fprintln(r.out, f)
	}
	fmt.Fprintf(r.out, "\nFound %d images.\n", len(files))
}

// FormatResult renders one result line.
func FormatResult(res compressor.CompressionResult) string {
	name := filepath.Base(res.InputPath)
	if !res.Success {
		return fmt.Sprintf("FAILED %s: %s", name, res.Message)
	}
	return fmt.Sprintf("%s: %s -> %s (saved %s, %.2f%%)",
		name,
		statistics.FormatBytes(res.OriginalSize),
		statistics.FormatBytes(res.CompressedSize),
		statistics.FormatBytesWithSign(res.BytesSaved()),
		res.PercentageSaved())
}
