package metadata

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func TestReadOrientation_NoExif(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if got := ReadOrientation(path); got != DefaultOrientation {
		t.Errorf("ReadOrientation = %d, want %d", got, DefaultOrientation)
	}
}

func TestReadOrientation_MissingFile(t *testing.T) {
	if got := ReadOrientation(filepath.Join(t.TempDir(), "missing.jpg")); got != DefaultOrientation {
		t.Errorf("ReadOrientation = %d, want %d", got, DefaultOrientation)
	}
}

func TestExiftoolPreserver_CopiesTags(t *testing.T) {
	p, err := NewExiftoolPreserver()
	if err != nil {
		t.Skipf("exiftool not available: %v", err)
	}
	defer p.Close()

	dir := t.TempDir()
	write := func(name string) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if err := jpeg.Encode(f, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
			t.Fatal(err)
		}
		return path
	}
	src := write("src.jpg")
	dst := write("dst.jpg")

	if err := p.Preserve(src, dst); err != nil {
		t.Fatalf("Preserve: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination missing after Preserve: %v", err)
	}
}
