// Package batch validates a run, dispatches one compression worker per
// candidate image and aggregates their results.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/quality"
	"image-compressor-go/internal/scanner"
	"image-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// CompressedPrefix is prepended to file names written next to their originals.
const CompressedPrefix = "compressed-"

var (
	// ErrInvalidInputPath is returned when the images directory is missing or unusable.
	ErrInvalidInputPath = errors.New("invalid images path")
	// ErrInvalidOutputPath is returned when the output directory does not exist.
	ErrInvalidOutputPath = errors.New("invalid output path")
	// ErrNoImagesFound is returned when the images directory holds no candidates.
	ErrNoImagesFound = errors.New("no images found")
)

// IsValidationError reports whether err is one of the pre-flight errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInputPath) ||
		errors.Is(err, ErrInvalidOutputPath) ||
		errors.Is(err, ErrNoImagesFound)
}

// Options describes one batch run.
type Options struct {
	InputDir  string
	OutputDir string // empty writes next to the originals
	Level     *int   // nil selects the per-format defaults

	// Concurrency bounds the number of images compressed at once.
	// Zero starts every worker immediately.
	Concurrency int

	// OnStart receives the summary before any worker is dispatched. It is
	// only written by the collector and may be read concurrently.
	OnStart func(*statistics.Summary)

	// OnResult, when set, is called from the collector goroutine for every
	// result in completion order.
	OnResult func(compressor.CompressionResult)
}

// Plan is the validated input of a run.
type Plan struct {
	InputDir  string
	OutputDir string
	Files     []string
}

// Orchestrator runs batches of compressions.
type Orchestrator struct {
	compressor compressor.Compressor
	classifier *scanner.Classifier
	log        *logrus.Logger
}

// NewOrchestrator returns an Orchestrator.
func NewOrchestrator(c compressor.Compressor, classifier *scanner.Classifier, log *logrus.Logger) *Orchestrator {
	if classifier == nil {
		classifier = scanner.NewClassifier(nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{
		compressor: c,
		classifier: classifier,
		log:        log,
	}
}

// NewResolver returns the destination policy for a run: next to the source
// with CompressedPrefix when outputDir is empty, otherwise outputDir/<name>.
func NewResolver(outputDir string) compressor.DestinationResolver {
	if outputDir == "" {
		return func(inputPath string) string {
			return filepath.Join(filepath.Dir(inputPath), CompressedPrefix+filepath.Base(inputPath))
		}
	}
	return func(inputPath string) string {
		return filepath.Join(outputDir, filepath.Base(inputPath))
	}
}

// Scan validates the directories and classifies the candidates without
// compressing anything.
func (o *Orchestrator) Scan(inputDir, outputDir string) (*Plan, error) {
	if inputDir == "" {
		return nil, fmt.Errorf("%w: images path not passed", ErrInvalidInputPath)
	}
	absInput, err := filepath.Abs(inputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInputPath, inputDir, err)
	}
	if !dirExists(absInput) {
		return nil, fmt.Errorf("%w: %s does not exist or is not a directory", ErrInvalidInputPath, absInput)
	}

	plan := &Plan{InputDir: absInput}
	if outputDir != "" {
		absOutput, err := filepath.Abs(outputDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOutputPath, outputDir, err)
		}
		if !dirExists(absOutput) {
			return nil, fmt.Errorf("%w: output directory %q does not exist", ErrInvalidOutputPath, absOutput)
		}
		plan.OutputDir = absOutput
	}

	o.log.WithField("directory", absInput).Debug("Scanning directory for images")
	files, err := o.classifier.Scan(absInput)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInputPath, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w at: %s", ErrNoImagesFound, absInput)
	}
	plan.Files = files
	return plan, nil
}

// Run validates opts, compresses every candidate concurrently and returns
// the summary once all workers have settled. Per-image failures are
// recorded in the summary and never fail the run.
func (o *Orchestrator) Run(opts Options) (*statistics.Summary, error) {
	plan, err := o.Scan(opts.InputDir, opts.OutputDir)
	if err != nil {
		return nil, err
	}
	return o.Execute(plan, opts), nil
}

// Execute compresses the files of a validated plan.
func (o *Orchestrator) Execute(plan *Plan, opts Options) *statistics.Summary {
	cfg := quality.MapConfig(opts.Level)
	resolve := NewResolver(plan.OutputDir)
	summary := statistics.NewSummary(len(plan.Files))
	if opts.OnStart != nil {
		opts.OnStart(summary)
	}

	o.log.WithFields(logrus.Fields{
		"images":     len(plan.Files),
		"input_dir":  plan.InputDir,
		"output_dir": plan.OutputDir,
	}).Info("Starting batch compression")

	results := make(chan compressor.CompressionResult, len(plan.Files))
	var sem chan struct{}
	if opts.Concurrency > 0 {
		sem = make(chan struct{}, opts.Concurrency)
	}

	var wg sync.WaitGroup
	wg.Add(len(plan.Files))
	for _, path := range plan.Files {
		go func(path string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results <- o.compressOne(path, cfg, resolve)
		}(path)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		summary.Record(r)
		if opts.OnResult != nil {
			opts.OnResult(r)
		}
	}

	summary.Finalize()
	o.log.WithFields(logrus.Fields{
		"processed":   summary.Processed,
		"failed":      summary.Failed,
		"bytes_saved": summary.BytesSaved(),
	}).Info("Batch compression completed")
	return summary
}

// compressOne runs a single worker and turns any error or panic into a
// failed result.
func (o *Orchestrator) compressOne(path string, cfg quality.FormatConfig, resolve compressor.DestinationResolver) (res compressor.CompressionResult) {
	entry := logger.WithFileOperation(o.log, path, "compress")
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("worker panic: %v", p)
			res = compressor.CompressionResult{
				InputPath:  path,
				Error:      err,
				Message:    err.Error(),
				StartedAt:  started,
				FinishedAt: time.Now(),
			}
			entry.Errorf("Compression failed: %v", err)
		}
	}()

	res, err := o.compressor.Compress(path, cfg, resolve)
	if err != nil {
		res.InputPath = path
		res.Success = false
		res.Error = err
		if res.FinishedAt.IsZero() {
			res.FinishedAt = time.Now()
		}
		entry.Errorf("Compression failed: %v", err)
		return res
	}
	logger.WithSizes(entry, res.OutputPath, res.OriginalSize, res.CompressedSize).Info("Image compressed")
	return res
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
