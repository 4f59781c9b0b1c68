// Package preview draws a downsampled view of a render in progress on the terminal.
package preview

import (
	"fmt"
	"image/color"
	"io"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
	"github.com/df07/go-pathtracer/pkg/renderer"
)

const (
	// DefaultFPS limits how often the preview is redrawn
	DefaultFPS = 15

	upperHalfBlock = "▀"
	barFilled      = "█"
	barEmpty       = "░"
)

// Preview redraws the framebuffer in place each time scanlines arrive. Each
// terminal cell shows two pixels using an upper half block with the top pixel
// as foreground and the bottom pixel as background.
type Preview struct {
	out      io.Writer
	cols     int
	rows     int
	profile  colorprofile.Profile
	interval time.Duration
	now      func() time.Time

	lastDraw  time.Time
	drawnRows int

	// Displayed progress eases toward the real fraction
	spring   harmonica.Spring
	progress float64
	velocity float64

	barStyle   lipgloss.Style
	emptyStyle lipgloss.Style
	labelStyle lipgloss.Style
}

// New creates a preview that fits within cols x rows terminal cells. One row
// is reserved for the progress bar.
func New(out io.Writer, cols, rows int, profile colorprofile.Profile) *Preview {
	return &Preview{
		out:        out,
		cols:       max(cols, 1),
		rows:       max(rows-1, 1),
		profile:    profile,
		interval:   time.Second / DefaultFPS,
		now:        time.Now,
		spring:     harmonica.NewSpring(harmonica.FPS(DefaultFPS), 6.0, 1.0),
		barStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")),
		emptyStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C")),
		labelStyle: lipgloss.NewStyle().Bold(true),
	}
}

// Update is a renderer.RenderOptions.ScanlineCallback. Redraws are throttled
// except for the last scanline.
func (p *Preview) Update(result renderer.ScanlineResult) {
	now := p.now()
	if result.Remaining > 0 && now.Sub(p.lastDraw) < p.interval {
		return
	}
	p.lastDraw = now

	target := float64(result.Completed) / float64(max(result.Total, 1))
	p.progress, p.velocity = p.spring.Update(p.progress, p.velocity, target)
	p.progress = min(p.progress, target)

	p.draw(result.Framebuffer, result.Completed, result.Total)
}

// Finish draws the finished image with a full progress bar
func (p *Preview) Finish(fb *renderer.Framebuffer) {
	p.progress, p.velocity = 1, 0
	p.draw(fb, fb.Height, fb.Height)
}

// Progress returns the eased progress fraction currently on screen
func (p *Preview) Progress() float64 {
	return p.progress
}

func (p *Preview) draw(fb *renderer.Framebuffer, completed, total int) {
	var sb strings.Builder
	if p.drawnRows > 0 {
		sb.WriteString("\r")
		sb.WriteString(ansi.CursorUp(p.drawnRows))
	}

	frame := RenderFrame(fb, p.cols, p.rows, p.profile)
	sb.WriteString(frame)
	sb.WriteString(ansi.ResetStyle)
	sb.WriteString("\r\n")
	sb.WriteString(p.progressLine(completed, total))
	sb.WriteString("\r\n")

	p.drawnRows = strings.Count(frame, "\n") + 2
	fmt.Fprint(p.out, sb.String())
}

func (p *Preview) progressLine(completed, total int) string {
	barWidth := max(min(p.cols-20, 50), 10)
	filled := progressCells(barWidth, p.progress)
	label := fmt.Sprintf(" %3.0f%% %d/%d", 100*float64(completed)/float64(max(total, 1)), completed, total)

	line := p.barStyle.Render(strings.Repeat(barFilled, filled)) +
		p.emptyStyle.Render(strings.Repeat(barEmpty, barWidth-filled)) +
		p.labelStyle.Render(label)
	if !hasColor(p.profile) {
		return ansi.Strip(line)
	}
	return line
}

// progressCells returns how many of width cells are filled at fraction
func progressCells(width int, fraction float64) int {
	if fraction <= 0 || width <= 0 {
		return 0
	}
	return min(int(fraction*float64(width)+0.5), width)
}

// FrameSize returns the pixel grid a width x height image is sampled onto so it
// fits cols x rows cells without stretching. The pixel height is always even.
func FrameSize(width, height, cols, rows int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	scale := min(1.0, float64(cols)/float64(width), float64(2*rows)/float64(height))
	w := max(int(float64(width)*scale), 1)
	h := max(int(float64(height)*scale), 1)
	return w, h + h%2
}

// RenderFrame samples fb onto a grid of half-block cells fitting cols x rows and
// returns it as styled terminal text, one line per cell row. Colors are reduced
// to what profile supports.
func RenderFrame(fb *renderer.Framebuffer, cols, rows int, profile colorprofile.Profile) string {
	w, h := FrameSize(fb.Width, fb.Height, cols, rows)
	if w == 0 {
		return ""
	}

	buf := uv.NewBuffer(w, h/2)
	for row := 0; row < h/2; row++ {
		top := (2 * row * fb.Height) / h
		bottom := min(((2*row+1)*fb.Height)/h, fb.Height-1)

		for col := 0; col < w; col++ {
			x := (col * fb.Width) / w
			buf.SetCell(col, row, &uv.Cell{
				Content: upperHalfBlock,
				Width:   1,
				Style: uv.Style{
					Fg: convertColor(profile, pixel(fb, top, x)),
					Bg: convertColor(profile, pixel(fb, bottom, x)),
				},
			})
		}
	}
	return buf.Render()
}

func pixel(fb *renderer.Framebuffer, row, col int) color.RGBA {
	r, g, b := fb.RGB(row, col)
	return color.RGBA{r, g, b, 255}
}

// convertColor returns nil when the profile cannot show color
func convertColor(profile colorprofile.Profile, c color.Color) color.Color {
	if !hasColor(profile) {
		return nil
	}
	return profile.Convert(c)
}

func hasColor(profile colorprofile.Profile) bool {
	return profile != colorprofile.NoTTY
}
