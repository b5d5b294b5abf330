package metadata

import (
	"fmt"
	"sync"

	"github.com/barasher/go-exiftool"
)

// Preserver copies descriptive metadata from an original image onto its
// re-encoded copy.
type Preserver interface {
	Preserve(src, dst string) error
}

// preservedTags lists the tags copied onto compressed images. File system,
// dimension and orientation tags are left out: the encoder writes its own
// and the pixels are already rotated upright.
var preservedTags = []string{
	"Make",
	"Model",
	"LensModel",
	"DateTimeOriginal",
	"CreateDate",
	"ModifyDate",
	"Artist",
	"Copyright",
	"ImageDescription",
	"ExposureTime",
	"FNumber",
	"ISO",
	"FocalLength",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",
	"GPSAltitude",
	"GPSAltitudeRef",
}

// ExiftoolPreserver implements Preserver with a long-running exiftool process.
type ExiftoolPreserver struct {
	et    *exiftool.Exiftool
	mutex sync.Mutex
}

// NewExiftoolPreserver starts exiftool. It fails when the binary is not installed.
func NewExiftoolPreserver() (*ExiftoolPreserver, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolPreserver{et: et}, nil
}

// Preserve copies the tags in preservedTags from src to dst.
// Calls are serialised because exiftool processes one request at a time.
func (p *ExiftoolPreserver) Preserve(src, dst string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	files := p.et.ExtractMetadata(src)
	if len(files) == 0 {
		return fmt.Errorf("no metadata returned for %s", src)
	}
	if files[0].Err != nil {
		return fmt.Errorf("extract metadata: %w", files[0].Err)
	}

	out := exiftool.FileMetadata{File: dst, Fields: make(map[string]interface{})}
	for _, tag := range preservedTags {
		if v, ok := files[0].Fields[tag]; ok {
			out.SetString(tag, fmt.Sprint(v))
		}
	}
	if len(out.Fields) == 0 {
		return nil
	}

	batch := []exiftool.FileMetadata{out}
	p.et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("write metadata: %w", batch[0].Err)
	}
	return nil
}

// Close stops the exiftool process.
func (p *ExiftoolPreserver) Close() error {
	return p.et.Close()
}
