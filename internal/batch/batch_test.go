package batch

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/quality"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, testImage()); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeJPEG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, testImage(), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(compressor.NewDefaultCompressor(nil, nil, nil), nil, nil)
}

// --- Resolver tests ---

func TestNewResolver(t *testing.T) {
	src := filepath.Join("/photos", "cat.png")

	if got, want := NewResolver("")(src), filepath.Join("/photos", "compressed-cat.png"); got != want {
		t.Errorf("in place: got %s, want %s", got, want)
	}
	if got, want := NewResolver("/out")(src), filepath.Join("/out", "cat.png"); got != want {
		t.Errorf("output dir: got %s, want %s", got, want)
	}
}

// --- Validation tests ---

func TestRun_EmptyInputPath(t *testing.T) {
	_, err := newTestOrchestrator().Run(Options{})
	if !errors.Is(err, ErrInvalidInputPath) {
		t.Fatalf("err = %v, want ErrInvalidInputPath", err)
	}
}

func TestRun_MissingInputPath(t *testing.T) {
	_, err := newTestOrchestrator().Run(Options{InputDir: filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, ErrInvalidInputPath) {
		t.Fatalf("err = %v, want ErrInvalidInputPath", err)
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError = false")
	}
}

func TestRun_MissingOutputPath(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	out := filepath.Join(t.TempDir(), "does-not-exist")

	var calls int32
	fake := &fakeCompressor{fn: func(string) (compressor.CompressionResult, error) {
		atomic.AddInt32(&calls, 1)
		return compressor.CompressionResult{Success: true}, nil
	}}
	_, err := NewOrchestrator(fake, nil, nil).Run(Options{InputDir: dir, OutputDir: out})
	if !errors.Is(err, ErrInvalidOutputPath) {
		t.Fatalf("err = %v, want ErrInvalidOutputPath", err)
	}
	if calls != 0 {
		t.Errorf("%d workers dispatched, want 0", calls)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output directory must not be created")
	}
	if _, err := os.Stat(filepath.Join(dir, "compressed-a.png")); !os.IsNotExist(err) {
		t.Error("no output may be written on validation failure")
	}
}

func TestRun_NoImagesFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.txt", "hello")

	_, err := newTestOrchestrator().Run(Options{InputDir: dir})
	if !errors.Is(err, ErrNoImagesFound) {
		t.Fatalf("err = %v, want ErrNoImagesFound", err)
	}
}

// --- Compression tests ---

func TestRun_InPlaceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "pic.png")
	origSize := fileSize(t, src)

	summary, err := newTestOrchestrator().Run(Options{InputDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dst := filepath.Join(dir, "compressed-pic.png")
	newSize := fileSize(t, dst)
	if got := fileSize(t, src); got != origSize {
		t.Errorf("original size changed: %d -> %d", origSize, got)
	}
	if summary.Processed != 1 {
		t.Fatalf("Processed = %d, want 1", summary.Processed)
	}
	r := summary.Results[0]
	if r.OriginalSize != origSize || r.CompressedSize != newSize {
		t.Errorf("reported %d -> %d, want %d -> %d", r.OriginalSize, r.CompressedSize, origSize, newSize)
	}
	if r.OutputPath != dst {
		t.Errorf("OutputPath = %s, want %s", r.OutputPath, dst)
	}
	if summary.BytesSaved() != origSize-newSize {
		t.Errorf("BytesSaved = %d, want %d", summary.BytesSaved(), origSize-newSize)
	}
}

func TestRun_OutputDirKeepsNames(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	writePNG(t, dir, "a.png")
	writeJPEG(t, dir, "b.jpg")
	level := 3

	summary, err := newTestOrchestrator().Run(Options{InputDir: dir, OutputDir: out, Level: &level})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("Processed = %d, want 2: %v", summary.Processed, summary.GetErrorSummary())
	}
	for _, name := range []string{"a.png", "b.jpg"} {
		fileSize(t, filepath.Join(out, name))
		if _, err := os.Stat(filepath.Join(dir, CompressedPrefix+name)); !os.IsNotExist(err) {
			t.Errorf("unexpected in-place output for %s", name)
		}
	}
}

func TestRun_OutputDirEqualsInputKeepsOriginals(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, "a.jpg")
	before, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	level := 1

	summary, err := newTestOrchestrator().Run(Options{InputDir: dir, OutputDir: dir, Level: &level})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 0 || summary.Failed != 1 {
		t.Fatalf("processed/failed = %d/%d, want 0/1", summary.Processed, summary.Failed)
	}
	if !errors.Is(summary.Results[0].Error, compressor.ErrIO) {
		t.Errorf("error = %v, want ErrIO", summary.Results[0].Error)
	}
	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("original image was overwritten")
	}
}

func TestRun_CorruptFileIsIsolated(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "good1.png")
	writeJPEG(t, dir, "good2.jpg")
	bad := writeFile(t, dir, "broken.png", "\x89PNG\r\n\x1a\nthis is not really a png")

	var seen []compressor.CompressionResult
	summary, err := newTestOrchestrator().Run(Options{
		InputDir: dir,
		OnResult: func(r compressor.CompressionResult) { seen = append(seen, r) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("processed/failed = %d/%d, want 2/1", summary.Processed, summary.Failed)
	}
	if len(seen) != 3 {
		t.Errorf("OnResult called %d times, want 3", len(seen))
	}
	failures := summary.GetFailures()
	if len(failures) != 1 || failures[0].FilePath != bad {
		t.Errorf("failures = %+v, want %s", failures, bad)
	}
	fileSize(t, filepath.Join(dir, "compressed-good1.png"))
	fileSize(t, filepath.Join(dir, "compressed-good2.jpg"))
}

func TestRun_UnsupportedFormatFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fake.jpg", "plain text pretending to be a photo")

	summary, err := newTestOrchestrator().Run(Options{InputDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 0 || summary.Failed != 1 {
		t.Fatalf("processed/failed = %d/%d, want 0/1", summary.Processed, summary.Failed)
	}
	if !errors.Is(summary.Results[0].Error, compressor.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", summary.Results[0].Error)
	}
}

// --- Dispatch tests ---

type fakeCompressor struct {
	fn func(path string) (compressor.CompressionResult, error)
}

func (f *fakeCompressor) Compress(path string, _ quality.FormatConfig, resolve compressor.DestinationResolver) (compressor.CompressionResult, error) {
	res, err := f.fn(path)
	res.InputPath = path
	res.OutputPath = resolve(path)
	return res, err
}

func TestRun_DispatchesOneWorkerPerImage(t *testing.T) {
	for _, nonImages := range []int{0, 1, 4} {
		dir := t.TempDir()
		for _, name := range []string{"a.png", "b.jpg", "c.webp"} {
			writeFile(t, dir, name, "x")
		}
		for i := 0; i < nonImages; i++ {
			writeFile(t, dir, string(rune('m'+i))+".txt", "x")
		}

		var mu sync.Mutex
		dispatched := map[string]int{}
		fake := &fakeCompressor{fn: func(path string) (compressor.CompressionResult, error) {
			mu.Lock()
			dispatched[filepath.Base(path)]++
			mu.Unlock()
			return compressor.CompressionResult{Success: true, OriginalSize: 10, CompressedSize: 4}, nil
		}}

		summary, err := NewOrchestrator(fake, nil, nil).Run(Options{InputDir: dir})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Candidates != 3 || len(dispatched) != 3 {
			t.Errorf("with %d non-images: candidates=%d dispatched=%v", nonImages, summary.Candidates, dispatched)
		}
		if summary.BytesSaved() != 18 {
			t.Errorf("BytesSaved = %d, want 18", summary.BytesSaved())
		}
	}
}

func TestRun_FailureDoesNotShortCircuit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writeFile(t, dir, name, "x")
	}

	var done int32
	fake := &fakeCompressor{fn: func(path string) (compressor.CompressionResult, error) {
		if filepath.Base(path) == "a.png" {
			return compressor.CompressionResult{}, compressor.ErrEncode
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&done, 1)
		return compressor.CompressionResult{Success: true}, nil
	}}

	summary, err := NewOrchestrator(fake, nil, nil).Run(Options{InputDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done != 3 || summary.Processed != 3 || summary.Failed != 1 {
		t.Errorf("done=%d processed=%d failed=%d", done, summary.Processed, summary.Failed)
	}
}

func TestRun_WorkerPanicBecomesFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", "x")
	writeFile(t, dir, "b.png", "x")

	fake := &fakeCompressor{fn: func(path string) (compressor.CompressionResult, error) {
		if filepath.Base(path) == "b.png" {
			panic("codec exploded")
		}
		return compressor.CompressionResult{Success: true}, nil
	}}

	summary, err := NewOrchestrator(fake, nil, nil).Run(Options{InputDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Errorf("processed/failed = %d/%d, want 1/1", summary.Processed, summary.Failed)
	}
	failures := summary.GetFailures()
	if len(failures) != 1 || failures[0].Timestamp.IsZero() {
		t.Errorf("failures = %+v, want one timestamped entry", failures)
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 8; i++ {
		writeFile(t, dir, string(rune('a'+i))+".png", "x")
	}

	var active, peak int32
	fake := &fakeCompressor{fn: func(string) (compressor.CompressionResult, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return compressor.CompressionResult{Success: true}, nil
	}}

	summary, err := NewOrchestrator(fake, nil, nil).Run(Options{InputDir: dir, Concurrency: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 8 {
		t.Errorf("Processed = %d, want 8", summary.Processed)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}
