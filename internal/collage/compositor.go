package collage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/memesrc/memesrc/internal/caption"
)

var ErrEmpty = errors.New("collage: no images")

// Source is one slot of a collage.
type Source interface {
	Load(ctx context.Context) (image.Image, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (image.Image, error)

func (f SourceFunc) Load(ctx context.Context) (image.Image, error) { return f(ctx) }

// FileSource loads a frame image from disk.
type FileSource string

func (p FileSource) Load(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return caption.LoadImage(string(p))
}

type Options struct {
	MaxWidth    int
	Border      int
	BorderColor color.Color
}

func DefaultOptions() Options {
	return Options{
		MaxWidth:    1000,
		Border:      10,
		BorderColor: color.Black,
	}
}

// Result is a serialized collage.
type Result struct {
	PNG     []byte `json:"-"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Missing []int  `json:"missing,omitempty"`
}

type Compositor struct {
	opts   Options
	logger *slog.Logger
}

func NewCompositor(opts Options, logger *slog.Logger) *Compositor {
	def := DefaultOptions()
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.Border < 0 {
		opts.Border = 0
	}
	if opts.BorderColor == nil {
		opts.BorderColor = def.BorderColor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{opts: opts, logger: logger}
}

func (c *Compositor) Options() Options { return c.opts }

// WithBorder returns a compositor sharing c's width with a different border.
func (c *Compositor) WithBorder(thickness int, col color.Color) *Compositor {
	opts := c.opts
	opts.Border = thickness
	if col != nil {
		opts.BorderColor = col
	}
	return NewCompositor(opts, c.logger)
}

// Compose loads every source concurrently and stacks them vertically. The
// output is encoded only after all loads have returned. A source that fails
// to load is replaced by a placeholder slot.
func (c *Compositor) Compose(ctx context.Context, sources []Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrEmpty
	}

	images := make([]image.Image, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			img, err := src.Load(gctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("collage image unavailable", "slot", i, "err", err)
				return nil
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []int
	sizes := make([]image.Point, len(images))
	for i, img := range images {
		if img == nil {
			missing = append(missing, i)
			sizes[i] = placeholderSize(c.opts.MaxWidth)
			continue
		}
		sizes[i] = img.Bounds().Size()
	}

	rects, canvas := Layout(sizes, c.opts.MaxWidth, c.opts.Border)
	dst := image.NewRGBA(image.Rectangle{Max: canvas})
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(c.opts.BorderColor), image.Point{}, xdraw.Src)

	placeholder := image.NewUniform(color.RGBA{R: 64, G: 64, B: 64, A: 255})
	for i, img := range images {
		if img == nil {
			xdraw.Draw(dst, rects[i], placeholder, image.Point{}, xdraw.Src)
			continue
		}
		xdraw.BiLinear.Scale(dst, rects[i], img, img.Bounds(), xdraw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("collage: encode: %w", err)
	}

	c.logger.Debug("collage composed",
		"images", len(images),
		"missing", len(missing),
		"width", canvas.X,
		"height", canvas.Y,
		"size", humanize.Bytes(uint64(buf.Len())),
	)

	return &Result{
		PNG:     buf.Bytes(),
		Width:   canvas.X,
		Height:  canvas.Y,
		Missing: missing,
	}, nil
}

// Layout scales every size to width and stacks them with border pixels
// above, between and below. The canvas height is the sum of the scaled
// heights plus border*(len(sizes)+1).
func Layout(sizes []image.Point, width, border int) ([]image.Rectangle, image.Point) {
	rects := make([]image.Rectangle, len(sizes))
	y := border
	for i, s := range sizes {
		h := ScaledHeight(s, width)
		rects[i] = image.Rect(0, y, width, y+h)
		y += h + border
	}
	return rects, image.Pt(width, y)
}

// ScaledHeight is the height of s when scaled to width, preserving aspect.
func ScaledHeight(s image.Point, width int) int {
	if s.X <= 0 {
		return 0
	}
	return (s.Y*width + s.X/2) / s.X
}

func placeholderSize(width int) image.Point {
	return image.Pt(16, 9).Mul(width / 16)
}

// ParseColor accepts #rgb, #rrggbb and a few names.
func ParseColor(s string) (color.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "black":
		return color.Black, nil
	case "white":
		return color.White, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("collage: invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("collage: invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
