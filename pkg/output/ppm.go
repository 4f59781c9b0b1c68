package output

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
)

// EncodePPM writes img as a plain-text P3 pixmap: a header of "P3", the
// dimensions and the maximum channel value 255, then one "R G B" line per
// pixel from the top scanline to the bottom.
func EncodePPM(w io.Writer, img image.Image) error {
	bw := bufio.NewWriter(w)
	bounds := img.Bounds()

	if _, err := fmt.Fprintf(bw, "P3\n%d %d\n255\n", bounds.Dx(), bounds.Dy()); err != nil {
		return err
	}

	line := make([]byte, 0, 16)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			line = line[:0]
			line = strconv.AppendUint(line, uint64(c.R), 10)
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(c.G), 10)
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(c.B), 10)
			line = append(line, '\n')
			if _, err := bw.Write(line); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// DecodePPM reads a P3 pixmap. '#' comments run to the end of the line.
func DecodePPM(r io.Reader) (*image.RGBA, error) {
	br := bufio.NewReader(r)
	token := make([]byte, 0, 8)

	// next returns the following whitespace-delimited token, skipping comments
	next := func() (string, error) {
		token = token[:0]
		for {
			b, err := br.ReadByte()
			if err != nil {
				if err == io.EOF && len(token) > 0 {
					return string(token), nil
				}
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return "", err
			}
			switch {
			case b == '#' && len(token) == 0:
				if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
					return "", err
				}
			case b == ' ' || b == '\t' || b == '\n' || b == '\r':
				if len(token) > 0 {
					return string(token), nil
				}
			default:
				token = append(token, b)
			}
		}
	}
	nextInt := func(what string) (int, error) {
		token, err := next()
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", what, err)
		}
		v, err := strconv.Atoi(token)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", what, token, err)
		}
		return v, nil
	}

	magic, err := next()
	if err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != "P3" {
		return nil, fmt.Errorf("%w: magic number %q is not P3", ErrUnsupportedFormat, magic)
	}

	width, err := nextInt("width")
	if err != nil {
		return nil, err
	}
	height, err := nextInt("height")
	if err != nil {
		return nil, err
	}
	maxVal, err := nextInt("max value")
	if err != nil {
		return nil, err
	}
	if width < 0 || height < 0 || maxVal <= 0 || maxVal > 255 {
		return nil, fmt.Errorf("unsupported pixmap header %dx%d max %d", width, height, maxVal)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var rgb [3]uint8
			for i := range rgb {
				v, err := nextInt("sample")
				if err != nil {
					return nil, fmt.Errorf("pixel (%d, %d): %w", x, y, err)
				}
				if v < 0 || v > maxVal {
					return nil, fmt.Errorf("pixel (%d, %d): sample %d outside [0, %d]", x, y, v, maxVal)
				}
				rgb[i] = uint8(v * 255 / maxVal)
			}
			img.SetRGBA(x, y, color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
		}
	}

	return img, nil
}
