package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/output"
	"github.com/df07/go-pathtracer/pkg/preview"
	"github.com/df07/go-pathtracer/pkg/renderer"
	"github.com/df07/go-pathtracer/pkg/scene"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

// renderFlags holds the values of the render command's flags
type renderFlags struct {
	scene     string
	width     int
	aspect    float64
	samples   int
	depth     int
	workers   int
	seed      int64
	output    string
	lookFrom  string
	lookAt    string
	vup       string
	vfov      float64
	aperture  float64
	focusDist float64
	sky       string
	horizon   string
	preview   bool
	timeout   time.Duration
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	groupStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8A8A8"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
)

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(context.Background(), root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &renderFlags{}

	root := &cobra.Command{
		Use:   "pathtracer",
		Short: "Render sphere scenes with a Monte Carlo path tracer",
		Long: "Render a scene of spheres with diffuse, metal and glass materials. " +
			"The image is written as PPM by default; .png, .ppm.gz and .ppm.zst are chosen by extension, and - writes PPM to stdout.",
		Example: "  pathtracer --scene random --samples 50 --output random.png\n" +
			"  pathtracer --scene scenes/glass-trio.gltf --width 200 --output - > out.ppm",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), flags, cmd.Flags(), stderr)
		},
	}
	addRenderFlags(root.Flags(), flags, isTerminal(stderr))

	root.AddCommand(newScenesCommand(stdout), newConvertCommand())
	return root
}

func addRenderFlags(fs *pflag.FlagSet, flags *renderFlags, tty bool) {
	defaults := renderer.DefaultSamplingConfig()

	fs.StringVarP(&flags.scene, "scene", "s", "default", "built-in scene name, gltf:<name>, or a .gltf/.glb file")
	fs.IntVarP(&flags.width, "width", "w", 0, "image width in pixels (default: scene setting)")
	fs.Float64Var(&flags.aspect, "aspect", 0, "aspect ratio width/height (default: scene setting)")
	fs.IntVar(&flags.samples, "samples", 0, "samples per pixel (default: scene setting)")
	fs.IntVar(&flags.depth, "depth", 0, "maximum bounce depth (default: scene setting)")
	fs.IntVar(&flags.workers, "workers", 0, "render workers, 0 uses every CPU (default: scene setting)")
	fs.Int64Var(&flags.seed, "seed", defaults.Seed, "seed for sampling and generated scenes")
	fs.StringVarP(&flags.output, "output", "o", "", "output path (default: output/<scene>/render_<timestamp>.ppm)")
	fs.StringVar(&flags.lookFrom, "lookfrom", "", "camera position as x,y,z")
	fs.StringVar(&flags.lookAt, "lookat", "", "camera target as x,y,z")
	fs.StringVar(&flags.vup, "vup", "", "camera up vector as x,y,z")
	fs.Float64Var(&flags.vfov, "vfov", 0, "vertical field of view in degrees")
	fs.Float64Var(&flags.aperture, "aperture", 0, "lens aperture, 0 for a pinhole camera")
	fs.Float64Var(&flags.focusDist, "focus-dist", 0, "focus distance, 0 focuses on the look-at point")
	fs.StringVar(&flags.sky, "sky", "", "sky color at the zenith as #rrggbb")
	fs.StringVar(&flags.horizon, "horizon", "", "sky color at the horizon as #rrggbb")
	fs.BoolVar(&flags.preview, "preview", tty, "draw the image in the terminal while rendering")
	fs.DurationVar(&flags.timeout, "timeout", 0, "abort the render after this long, 0 for no limit")
}

// createScene builds the selected scene and applies every flag that was set
func createScene(flags *renderFlags, fs *pflag.FlagSet) (*scene.Scene, error) {
	s, err := scene.Create(flags.scene, flags.seed)
	if err != nil {
		return nil, err
	}

	camera := &s.CameraConfig
	vectors := []struct {
		name   string
		value  string
		target *core.Vec3
	}{
		{"lookfrom", flags.lookFrom, &camera.Center},
		{"lookat", flags.lookAt, &camera.LookAt},
		{"vup", flags.vup, &camera.Up},
	}
	for _, v := range vectors {
		if !fs.Changed(v.name) {
			continue
		}
		vec, err := parseVec3(v.value)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", v.name, err)
		}
		*v.target = vec
	}

	if fs.Changed("width") {
		camera.Width = flags.width
	}
	if fs.Changed("aspect") {
		camera.AspectRatio = flags.aspect
	}
	if fs.Changed("vfov") {
		camera.VFov = flags.vfov
	}
	if fs.Changed("aperture") {
		camera.Aperture = flags.aperture
	}
	if fs.Changed("focus-dist") {
		camera.FocusDistance = flags.focusDist
	}

	sampling := &s.SamplingConfig
	if fs.Changed("samples") {
		sampling.SamplesPerPixel = flags.samples
	}
	if fs.Changed("depth") {
		sampling.MaxDepth = flags.depth
	}
	if fs.Changed("workers") {
		sampling.NumWorkers = flags.workers
	}
	if fs.Changed("seed") {
		sampling.Seed = flags.seed
	}

	if fs.Changed("sky") {
		if s.Background.Top, err = scene.ParseHexColor(flags.sky); err != nil {
			return nil, fmt.Errorf("--sky: %w", err)
		}
	}
	if fs.Changed("horizon") {
		if s.Background.Bottom, err = scene.ParseHexColor(flags.horizon); err != nil {
			return nil, fmt.Errorf("--horizon: %w", err)
		}
	}

	return s, nil
}

// parseVec3 parses "x,y,z"
func parseVec3(s string) (core.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return core.Vec3{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var xyz [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return core.Vec3{}, fmt.Errorf("invalid component %q in %q", part, s)
		}
		xyz[i] = f
	}
	return core.NewVec3(xyz[0], xyz[1], xyz[2]), nil
}

func runRender(ctx context.Context, flags *renderFlags, fs *pflag.FlagSet, stderr io.Writer) error {
	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	s, err := createScene(flags, fs)
	if err != nil {
		return err
	}

	path := flags.output
	if path == "" {
		path = output.DefaultPath(s.Name, output.FormatPPM, time.Now())
	}
	// Reject unknown extensions before spending time on the render
	if path != output.StdoutPath {
		if _, err := output.FormatFromPath(path); err != nil {
			return err
		}
	}

	styled := colorprofile.NewWriter(stderr, os.Environ())
	logger := newStyledLogger(styled)

	var options renderer.RenderOptions
	var termPreview *preview.Preview
	rendererLogger := core.Logger(logger)
	if flags.preview {
		cols, rows := terminalSize(stderr)
		termPreview = preview.New(styled, cols, rows, styled.Profile)
		options.ScanlineCallback = termPreview.Update
		// Progress lines would scroll the preview away
		rendererLogger = renderer.NopLogger{}
	}

	r, err := s.NewRenderer(rendererLogger)
	if err != nil {
		return err
	}

	fmt.Fprintln(styled, titleStyle.Render(fmt.Sprintf("Rendering %s", s.Name))+" "+
		dimStyle.Render(fmt.Sprintf("%dx%d, %d spp, depth %d, %d spheres",
			r.Width(), r.Height(), s.SamplingConfig.SamplesPerPixel, s.SamplingConfig.MaxDepth, s.GetPrimitiveCount())))

	fb, stats, err := r.Render(ctx, options)
	if err != nil {
		return err
	}
	if termPreview != nil {
		termPreview.Finish(fb)
	}

	if err := output.Save(path, fb); err != nil {
		return err
	}

	fmt.Fprintln(styled, successStyle.Render("Done")+" "+dimStyle.Render(fmt.Sprintf(
		"%v, %d workers, %.0f samples/sec", stats.Duration.Round(time.Millisecond), stats.Workers, stats.SamplesPerSecond())))
	if path != output.StdoutPath {
		fmt.Fprintf(styled, "Render saved as %s\n", idStyle.Render(path))
	}
	return nil
}

func newScenesCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes",
		Short: "List built-in scenes and glTF scenes in ./scenes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := scene.ListAllScenes()
			if err != nil {
				return err
			}
			w := colorprofile.NewWriter(stdout, os.Environ())
			for i, group := range response.Groups {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintln(w, groupStyle.Render(group.Name))
				for _, info := range group.Scenes {
					line := "  " + idStyle.Render(fmt.Sprintf("%-24s", info.ID)) + " " + info.DisplayName
					if info.Description != "" {
						line += " " + dimStyle.Render(info.Description)
					}
					fmt.Fprintln(w, line)
				}
			}
			return nil
		},
	}
}

func newConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a rendered image between PPM, compressed PPM and PNG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := output.Load(args[0])
			if err != nil {
				return err
			}
			return output.Save(args[1], img)
		},
	}
}

// styledLogger implements core.Logger with dimmed lines
type styledLogger struct {
	w io.Writer
}

func newStyledLogger(w io.Writer) *styledLogger {
	return &styledLogger{w: w}
}

func (l *styledLogger) Printf(format string, args ...interface{}) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintln(l.w, logStyle.Render(msg))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func terminalSize(w io.Writer) (int, int) {
	if f, ok := w.(*os.File); ok {
		if cols, rows, err := term.GetSize(f.Fd()); err == nil && cols > 0 && rows > 0 {
			return cols, rows
		}
	}
	return 80, 24
}
