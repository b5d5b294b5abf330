package statistics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"image-compressor-go/internal/compressor"
)

// maxListedErrors caps the number of failures rendered by GetErrorSummary.
const maxListedErrors = 10

// Failure records an image that could not be compressed.
type Failure struct {
	FilePath  string    `json:"file_path"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the aggregate outcome of one batch run. A single collector
// records results; the mutex only guards concurrent readers.
type Summary struct {
	Candidates      int                            `json:"candidates"`
	Processed       int                            `json:"processed"`
	Failed          int                            `json:"failed"`
	OriginalBytes   int64                          `json:"original_bytes"`
	CompressedBytes int64                          `json:"compressed_bytes"`
	Results         []compressor.CompressionResult `json:"results"`
	Failures        []Failure                      `json:"failures"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	mutex sync.RWMutex
}

// NewSummary returns an empty Summary for a run over candidates images.
func NewSummary(candidates int) *Summary {
	return &Summary{
		Candidates: candidates,
		Results:    make([]compressor.CompressionResult, 0, candidates),
		Failures:   make([]Failure, 0),
		StartTime:  time.Now(),
	}
}

// Record adds one result. Only successful results count towards Processed
// and the byte totals.
func (s *Summary) Record(r compressor.CompressionResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Results = append(s.Results, r)
	if !r.Success {
		s.Failed++
		msg := r.Message
		if r.Error != nil {
			msg = r.Error.Error()
		}
		s.Failures = append(s.Failures, Failure{
			FilePath:  r.InputPath,
			Error:     msg,
			Timestamp: r.FinishedAt,
		})
		return
	}
	s.Processed++
	s.OriginalBytes += r.OriginalSize
	s.CompressedBytes += r.CompressedSize
}

// Finalize stamps the end time and duration.
func (s *Summary) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// BytesSaved returns the total bytes saved over successful images.
func (s *Summary) BytesSaved() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.OriginalBytes - s.CompressedBytes
}

// PercentageSaved returns BytesSaved as a percentage of OriginalBytes.
func (s *Summary) PercentageSaved() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.OriginalBytes == 0 {
		return 0
	}
	return float64(s.OriginalBytes-s.CompressedBytes) * 100 / float64(s.OriginalBytes)
}

// GetProcessed returns the number of successfully compressed images.
func (s *Summary) GetProcessed() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Processed
}

// GetFailures returns a copy of the recorded failures.
func (s *Summary) GetFailures() []Failure {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]Failure, len(s.Failures))
	copy(out, s.Failures)
	return out
}

// Snapshot returns a copy that is safe to hand to other goroutines.
func (s *Summary) Snapshot() *Summary {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	c := &Summary{
		Candidates:      s.Candidates,
		Processed:       s.Processed,
		Failed:          s.Failed,
		OriginalBytes:   s.OriginalBytes,
		CompressedBytes: s.CompressedBytes,
		Results:         make([]compressor.CompressionResult, len(s.Results)),
		Failures:        make([]Failure, len(s.Failures)),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Duration:        s.Duration,
	}
	copy(c.Results, s.Results)
	copy(c.Failures, s.Failures)
	return c
}

// GetSummary returns a formatted summary of the run.
func (s *Summary) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	saved := s.OriginalBytes - s.CompressedBytes
	var pct float64
	if s.OriginalBytes > 0 {
		pct = float64(saved) * 100 / float64(s.OriginalBytes)
	}

	return fmt.Sprintf(`Image Compressor Summary:

Images:
		Found: %d
		Compressed: %d
		Failed: %d

Size:
		Original: %s
		Compressed: %s
		Saved: %s (%.2f%%)

Duration: %v`,
		s.Candidates,
		s.Processed,
		s.Failed,
		FormatBytes(s.OriginalBytes),
		FormatBytes(s.CompressedBytes),
		FormatBytesWithSign(saved),
		pct,
		s.Duration.Round(time.Millisecond))
}

// GetErrorSummary returns a summary of the images that failed.
func (s *Summary) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Failures) == 0 {
		return "No errors occurred during compression"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Failures))
	for i, f := range s.Failures {
		if i >= maxListedErrors {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Failures)-maxListedErrors)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s - %s\n",
			f.Timestamp.Format("15:04:05"),
			f.FilePath,
			f.Error)
	}
	return b.String()
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatBytesWithSign formats a saving; growth is shown with a leading minus.
func FormatBytesWithSign(bytes int64) string {
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	return FormatBytes(bytes)
}
