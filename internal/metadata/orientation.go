// Package metadata reads EXIF orientation and carries descriptive tags over
// to compressed copies.
package metadata

import (
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// DefaultOrientation is the EXIF value for an upright image.
const DefaultOrientation = 1

// ReadOrientation returns the EXIF orientation (1-8) of the file at path.
// Files without readable EXIF data report DefaultOrientation.
func ReadOrientation(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return DefaultOrientation
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return DefaultOrientation
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return DefaultOrientation
	}

	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return DefaultOrientation
	}
	return v
}
