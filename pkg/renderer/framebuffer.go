package renderer

import (
	"image"
	"image/color"
	"math"

	"github.com/df07/go-pathtracer/pkg/core"
)

// Framebuffer holds the per-pixel accumulated radiance of a render.
// Row 0 is the top scanline. It implements image.Image over the gamma-corrected bytes.
type Framebuffer struct {
	Width           int
	Height          int
	SamplesPerPixel int
	accum           []core.Vec3
}

// NewFramebuffer creates an empty framebuffer
func NewFramebuffer(width, height, samplesPerPixel int) *Framebuffer {
	return &Framebuffer{
		Width:           width,
		Height:          height,
		SamplesPerPixel: samplesPerPixel,
		accum:           make([]core.Vec3, width*height),
	}
}

// Set stores the accumulated (un-averaged) color for a pixel
func (fb *Framebuffer) Set(row, col int, accumulated core.Vec3) {
	fb.accum[row*fb.Width+col] = accumulated
}

// Accum returns the accumulated color for a pixel
func (fb *Framebuffer) Accum(row, col int) core.Vec3 {
	return fb.accum[row*fb.Width+col]
}

// RGB returns the output bytes for a pixel
func (fb *Framebuffer) RGB(row, col int) (r, g, b uint8) {
	c := fb.Accum(row, col)
	return ToByte(c.X, fb.SamplesPerPixel), ToByte(c.Y, fb.SamplesPerPixel), ToByte(c.Z, fb.SamplesPerPixel)
}

// ToByte converts one accumulated channel to its output value:
// average over the samples, gamma 2, clamp to [0, 0.999], scale by 256.
func ToByte(accumulated float64, samplesPerPixel int) uint8 {
	if samplesPerPixel < 1 {
		samplesPerPixel = 1
	}
	v := math.Sqrt(accumulated / float64(samplesPerPixel))
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(0.999, v))
	return uint8(256 * v)
}

// ColorModel implements image.Image
func (fb *Framebuffer) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image
func (fb *Framebuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, fb.Width, fb.Height)
}

// At implements image.Image
func (fb *Framebuffer) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= fb.Width || y >= fb.Height {
		return color.RGBA{}
	}
	r, g, b := fb.RGB(y, x)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// ScanlineImage returns a 1-pixel-high image of a single row
func (fb *Framebuffer) ScanlineImage(row int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.Width, 1))
	for col := 0; col < fb.Width; col++ {
		r, g, b := fb.RGB(row, col)
		img.SetRGBA(col, 0, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return img
}

// ToRGBA converts the whole framebuffer to an RGBA image
func (fb *Framebuffer) ToRGBA() *image.RGBA {
	img := image.NewRGBA(fb.Bounds())
	for row := 0; row < fb.Height; row++ {
		for col := 0; col < fb.Width; col++ {
			r, g, b := fb.RGB(row, col)
			img.SetRGBA(col, row, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}
