package output

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupportedFormat is returned for output paths whose extension has no encoder
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format identifies an on-disk image encoding
type Format int

const (
	FormatPPM     Format = iota // Plain P3 pixmap
	FormatPPMGzip               // P3 pixmap, gzip compressed
	FormatPPMZstd               // P3 pixmap, zstd compressed
	FormatPNG
)

// StdoutPath selects standard output instead of a file
const StdoutPath = "-"

// String returns the canonical file extension for the format
func (f Format) String() string {
	switch f {
	case FormatPPM:
		return ".ppm"
	case FormatPPMGzip:
		return ".ppm.gz"
	case FormatPPMZstd:
		return ".ppm.zst"
	case FormatPNG:
		return ".png"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks the encoding from the file extension
func FormatFromPath(path string) (Format, error) {
	if path == StdoutPath {
		return FormatPPM, nil
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".ppm.gz"):
		return FormatPPMGzip, nil
	case strings.HasSuffix(lower, ".ppm.zst"):
		return FormatPPMZstd, nil
	case strings.HasSuffix(lower, ".ppm"):
		return FormatPPM, nil
	case strings.HasSuffix(lower, ".png"):
		return FormatPNG, nil
	}
	return 0, fmt.Errorf("%w: %q (want .ppm, .ppm.gz, .ppm.zst or .png)", ErrUnsupportedFormat, path)
}

// Encode writes img to w in the given format
func Encode(w io.Writer, format Format, img image.Image) error {
	switch format {
	case FormatPPM:
		return EncodePPM(w, img)
	case FormatPPMGzip:
		zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
		if err != nil {
			return err
		}
		if err := EncodePPM(zw, img); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case FormatPPMZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		if err := EncodePPM(zw, img); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case FormatPNG:
		return png.Encode(w, img)
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
}

// Decode reads an image previously written with Encode
func Decode(r io.Reader, format Format) (image.Image, error) {
	switch format {
	case FormatPPM:
		return DecodePPM(r)
	case FormatPPMGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		return DecodePPM(zr)
	case FormatPPMZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		return DecodePPM(zr)
	case FormatPNG:
		return png.Decode(r)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
}

// Save writes img to path, choosing the encoding from the extension and
// creating missing parent directories. StdoutPath writes a PPM to stdout.
func Save(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if path == StdoutPath {
		return Encode(os.Stdout, format, img)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := Encode(file, format, img); err != nil {
		file.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return file.Close()
}

// Load reads an image file written by Save
func Load(path string) (image.Image, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if path == StdoutPath {
		return Decode(os.Stdin, format)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// DefaultPath returns output/<scene>/render_<timestamp><ext>
func DefaultPath(sceneName string, format Format, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(sceneName), filepath.Ext(sceneName))
	timestamp := now.Format("20060102_150405")
	return filepath.Join("output", name, fmt.Sprintf("render_%s%s", timestamp, format))
}
