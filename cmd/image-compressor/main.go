package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor-go/internal/batch"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/display"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/scanner"
	"image-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// exitValidation is the process exit code for invalid input/output paths
// and empty image directories.
const exitValidation = 2

var (
	cfgFile          string
	imagesPath       string
	outputPath       string
	compressionLevel int
	workers          int
	keepMetadata     bool
	showProgress     bool
	verbose          bool
	quiet            bool
	port             int
)

// rootCmd compresses every image in a directory.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Batch compress the images in a directory",
	Long: `image-compressor re-encodes every JPEG, WebP and PNG image found directly
inside a directory at a lower quality and reports the bytes saved.

Compressed images are written next to the originals as compressed-<name>,
or into --outputPath (which must already exist) under their original names.

--compressionLevel takes 1-10: JPEG and WebP quality is level x 10,
PNG compression effort is the level. Without it the defaults are
quality 70 and PNG effort 7. Out of range levels are clamped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd)
	},
}

// scanCmd lists the candidate images without compressing them.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the images that would be compressed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd)
	},
}

// serveCmd starts the web API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with websocket progress events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "maximum images compressed at once (0 = all at once)")
	rootCmd.PersistentFlags().BoolVar(&keepMetadata, "keep-metadata", false, "copy EXIF tags onto compressed images (requires exiftool)")

	rootCmd.Flags().StringVar(&imagesPath, "imagesPath", "", "directory containing the images to compress")
	rootCmd.Flags().StringVar(&outputPath, "outputPath", "", "existing directory for compressed images (default: next to originals)")
	rootCmd.Flags().IntVar(&compressionLevel, "compressionLevel", 0, "compression level 1-10 (default: per-format defaults)")
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar instead of per-image lines")

	scanCmd.Flags().StringVar(&imagesPath, "imagesPath", "", "directory containing the images to scan")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run the web server on (default from config, 8080)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes a batch run.
func runCompress(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	orch, cleanup := newOrchestrator(cfg, log)
	defer cleanup()

	reporter := display.NewReporter(os.Stdout, os.Stderr, quiet, cfg.Performance.ShowProgress)
	reporter.Intro(cfg.ImagesPath, cfg.OutputPath)

	plan, err := orch.Scan(cfg.ImagesPath, cfg.OutputPath)
	if err != nil {
		return err
	}
	reporter.Found(len(plan.Files))

	summary := orch.Execute(plan, batch.Options{
		Level:       cfg.CompressionLevel,
		Concurrency: cfg.Performance.WorkerThreads,
		OnResult:    reporter.Result,
	})
	reporter.Conclusion(summary)
	return nil
}

// runScan validates the images directory and lists its candidates.
func runScan(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	orch := batch.NewOrchestrator(nil, scanner.NewClassifier(cfg.SupportedExtensions), log)

	plan, err := orch.Scan(cfg.ImagesPath, "")
	if err != nil {
		return err
	}
	display.NewReporter(os.Stdout, os.Stderr, quiet, false).Candidates(plan.Files)
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	orch, cleanup := newOrchestrator(cfg, log)
	defer cleanup()
	server := web.NewServer(cfg, log, orch)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("Image Compressor API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	server.Wait()

	fmt.Println("Server stopped")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if imagesPath != "" {
		cfg.ImagesPath = imagesPath
	}
	if outputPath != "" {
		cfg.OutputPath = outputPath
	}
	// 0 is a real level (clamped to 1) so presence decides, not the value
	if flags.Changed("compressionLevel") {
		level := compressionLevel
		cfg.CompressionLevel = &level
	}
	if flags.Changed("workers") {
		cfg.Performance.WorkerThreads = workers
	}
	if flags.Changed("keep-metadata") {
		cfg.Metadata.Preserve = keepMetadata
	}
	if flags.Changed("progress") {
		cfg.Performance.ShowProgress = showProgress
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newOrchestrator wires the compressor stack. The returned cleanup stops
// exiftool when metadata preservation is on.
func newOrchestrator(cfg *config.Config, log *logrus.Logger) (*batch.Orchestrator, func()) {
	cleanup := func() {}

	var preserver metadata.Preserver
	if cfg.Metadata.Preserve {
		p, err := metadata.NewExiftoolPreserver()
		if err != nil {
			log.Warnf("Metadata will not be preserved: %v", err)
		} else {
			preserver = p
			cleanup = func() {
				if err := p.Close(); err != nil {
					log.Warnf("Failed to stop exiftool: %v", err)
				}
			}
		}
	}

	c := compressor.NewDefaultCompressor(log, nil, preserver)
	return batch.NewOrchestrator(c, scanner.NewClassifier(cfg.SupportedExtensions), log), cleanup
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if batch.IsValidationError(err) {
			os.Exit(exitValidation)
		}
		os.Exit(1)
	}
}
