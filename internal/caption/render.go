package caption

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// ErrImageUnavailable means the source frame could not be loaded. It is a
// per-image condition and callers show a placeholder instead of failing.
var ErrImageUnavailable = errors.New("caption: image unavailable")

// Options are expressed at ReferenceWidth and scaled linearly to the width
// of the image being captioned.
type Options struct {
	ReferenceWidth int
	FontSize       float64
	LineHeight     float64
	SideMargin     int
	BottomOffset   int
	StrokeWidth    int
	Quality        int
}

// DefaultOptions matches the frame editor's layout for 1000px wide frames.
func DefaultOptions() Options {
	return Options{
		ReferenceWidth: 1000,
		FontSize:       40,
		LineHeight:     48,
		SideMargin:     60,
		BottomOffset:   30,
		StrokeWidth:    5,
		Quality:        90,
	}
}

// Rasterizer burns captions into frames.
type Rasterizer struct {
	font *opentype.Font
	opts Options
}

func New(opts Options) (*Rasterizer, error) {
	def := DefaultOptions()
	if opts.ReferenceWidth <= 0 {
		opts.ReferenceWidth = def.ReferenceWidth
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = opts.FontSize * 1.2
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}

	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("caption: parse font: %w", err)
	}
	return &Rasterizer{font: f, opts: opts}, nil
}

// Options returns the effective options.
func (r *Rasterizer) Options() Options { return r.opts }

type faceMeasurer struct{ face font.Face }

func (m faceMeasurer) Measure(s string) int {
	return font.MeasureString(m.face, s).Ceil()
}

// Render returns a copy of src with caption drawn near the bottom edge.
// When show is false the copy is returned untouched.
func (r *Rasterizer) Render(src image.Image, caption string, show bool) (*image.RGBA, error) {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	if !show || caption == "" {
		return dst, nil
	}

	width := dst.Bounds().Dx()
	height := dst.Bounds().Dy()
	scale := float64(width) / float64(r.opts.ReferenceWidth)

	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    r.opts.FontSize * scale,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("caption: font face: %w", err)
	}
	defer face.Close()

	m := faceMeasurer{face: face}
	maxWidth := width - int(float64(r.opts.SideMargin)*scale)
	lineHeight := r.opts.LineHeight * scale
	stroke := int(float64(r.opts.StrokeWidth)*scale + 0.5)

	// The block is anchored by its last line, so the line count is needed
	// before the first line can be placed.
	lines := WrapText(m, caption, maxWidth, nil)
	lastBaseline := float64(height) - float64(r.opts.BottomOffset)*scale
	firstBaseline := lastBaseline - float64(lines-1)*lineHeight

	outline := image.NewUniform(color.Black)
	fill := image.NewUniform(color.White)

	WrapText(m, caption, maxWidth, func(line string, index int) {
		if line == "" {
			return
		}
		x := (width - m.Measure(line)) / 2
		y := int(firstBaseline + float64(index)*lineHeight)

		d := &font.Drawer{Dst: dst, Face: face}
		d.Src = outline
		for dy := -stroke; dy <= stroke; dy++ {
			for dx := -stroke; dx <= stroke; dx++ {
				if dx*dx+dy*dy > stroke*stroke {
					continue
				}
				d.Dot = fixed.P(x+dx, y+dy)
				d.DrawString(line)
			}
		}
		d.Src = fill
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	})

	return dst, nil
}

// RenderJPEG renders and encodes the result as JPEG.
func (r *Rasterizer) RenderJPEG(w io.Writer, src image.Image, caption string, show bool) error {
	img, err := r.Render(src, caption, show)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: r.opts.Quality})
}

// LoadImage decodes the image at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrImageUnavailable, path, err)
	}
	return img, nil
}
