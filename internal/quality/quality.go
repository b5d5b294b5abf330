package quality

const (
	// MinLevel is the lowest accepted compression level.
	MinLevel = 1
	// MaxLevel is the highest accepted compression level.
	MaxLevel = 10

	// DefaultJPEGQuality is used when no compression level is supplied.
	DefaultJPEGQuality = 70
	// DefaultWebPQuality is used when no compression level is supplied.
	DefaultWebPQuality = 70
	// DefaultPNGCompressionLevel is used when no compression level is supplied.
	DefaultPNGCompressionLevel = 7

	// maxPNGCompressionLevel is the highest zlib effort the PNG encoder understands.
	maxPNGCompressionLevel = 9
)

// JPEGParams holds the JPEG encoder parameters.
type JPEGParams struct {
	Quality int `json:"quality"`
}

// WebPParams holds the WebP encoder parameters.
type WebPParams struct {
	Quality int `json:"quality"`
}

// PNGParams holds the PNG encoder parameters.
type PNGParams struct {
	CompressionLevel int `json:"compression_level"`
}

// FormatConfig contains the resolved encoder parameters for one run.
type FormatConfig struct {
	JPEG JPEGParams `json:"jpeg"`
	WebP WebPParams `json:"webp"`
	PNG  PNGParams  `json:"png"`
}

// DefaultFormatConfig returns the per-format defaults.
func DefaultFormatConfig() FormatConfig {
	return FormatConfig{
		JPEG: JPEGParams{Quality: DefaultJPEGQuality},
		WebP: WebPParams{Quality: DefaultWebPQuality},
		PNG:  PNGParams{CompressionLevel: DefaultPNGCompressionLevel},
	}
}

// Clamp forces level into [MinLevel, MaxLevel].
func Clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// MapConfig translates a user compression level into encoder parameters.
// A nil level yields DefaultFormatConfig. Out of range levels are clamped.
func MapConfig(level *int) FormatConfig {
	if level == nil {
		return DefaultFormatConfig()
	}

	l := Clamp(*level)
	return FormatConfig{
		JPEG: JPEGParams{Quality: l * 10},
		WebP: WebPParams{Quality: l * 10},
		PNG:  PNGParams{CompressionLevel: min(l, maxPNGCompressionLevel)},
	}
}
