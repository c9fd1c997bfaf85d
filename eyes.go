package main

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/vector"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Side identifies one of the two eye displays.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// Display is a monochrome panel.  *ssd1306.Dev satisfies it.
type Display interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

var _ Display = (*ssd1306.Dev)(nil)

// point is a vertex in the 128x64 reference frame the shapes are drawn in.
type point struct{ x, y float32 }

// RenderEye draws expr for one side into a w x h frame.  Shapes are laid out
// for 128x64 and scaled to the requested size.
func RenderEye(expr Expression, side Side, w, h int) *image1bit.VerticalLSB {
	sx, sy := float32(w)/128, float32(h)/64
	z := vector.NewRasterizer(w, h)
	poly := func(pts ...point) {
		z.MoveTo(pts[0].x*sx, pts[0].y*sy)
		for _, p := range pts[1:] {
			z.LineTo(p.x*sx, p.y*sy)
		}
		z.ClosePath()
	}

	switch expr {
	case ExpressionWelcome:
		// Ring: outer ellipse, inner ellipse wound the other way.
		ellipse(z, 64*sx, 40*sy, 32*sx, 24*sy, false)
		ellipse(z, 64*sx, 40*sy, 30*sx, 22*sy, true)
	case ExpressionAngry:
		if side == SideLeft {
			poly(point{20, 20}, point{100, 30}, point{100, 50}, point{20, 40})
		} else {
			poly(point{20, 30}, point{100, 20}, point{100, 40}, point{20, 50})
		}
	case ExpressionSleep:
		poly(point{32, 31}, point{96, 31}, point{96, 34}, point{32, 34})
	default:
		poly(point{48, 24}, point{80, 24}, point{80, 56}, point{48, 56})
	}

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	frame := image1bit.NewVerticalLSB(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.AlphaAt(x, y).A >= 0x80 {
				frame.SetBit(x, y, image1bit.On)
			}
		}
	}
	return frame
}

// ellipse appends an ellipse path built from four cubic segments.
func ellipse(z *vector.Rasterizer, cx, cy, rx, ry float32, reverse bool) {
	const k = 0.5522848
	kx, ky := rx*k, ry*k
	z.MoveTo(cx+rx, cy)
	if !reverse {
		z.CubeTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry)
		z.CubeTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy)
		z.CubeTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry)
		z.CubeTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy)
	} else {
		z.CubeTo(cx+rx, cy-ky, cx+kx, cy-ry, cx, cy-ry)
		z.CubeTo(cx-kx, cy-ry, cx-rx, cy-ky, cx-rx, cy)
		z.CubeTo(cx-rx, cy+ky, cx-kx, cy+ry, cx, cy+ry)
		z.CubeTo(cx+kx, cy+ry, cx+rx, cy+ky, cx+rx, cy)
	}
	z.ClosePath()
}

// Eyes renders expressions and pushes them to the left and right displays.
type Eyes struct {
	left, right Display
	frames      map[Expression][2]*image1bit.VerticalLSB
	closer      func() error
}

// NewEyes pre-renders every expression at w x h.
func NewEyes(left, right Display, w, h int) *Eyes {
	e := &Eyes{left: left, right: right, frames: make(map[Expression][2]*image1bit.VerticalLSB)}
	for expr := range expressionNames {
		e.frames[expr] = [2]*image1bit.VerticalLSB{
			RenderEye(expr, SideLeft, w, h),
			RenderEye(expr, SideRight, w, h),
		}
	}
	return e
}

// OpenEyes opens the configured display backend.
func OpenEyes(cfg DisplayConfig, logger *slog.Logger) (*Eyes, error) {
	if cfg.Backend == "none" {
		log := logger.With("component", "eyes")
		return NewEyes(logDisplay{side: SideLeft, logger: log}, logDisplay{side: SideRight, logger: log}, cfg.Width, cfg.Height), nil
	}

	bus, err := openI2C(cfg.Bus)
	if err != nil {
		return nil, err
	}
	opts := ssd1306.DefaultOpts
	opts.W, opts.H = cfg.Width, cfg.Height
	left, err := ssd1306.NewI2C(&addressedBus{Bus: bus, addr: cfg.LeftAddr}, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("left eye at 0x%02X: %w", cfg.LeftAddr, err)
	}
	right, err := ssd1306.NewI2C(&addressedBus{Bus: bus, addr: cfg.RightAddr}, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("right eye at 0x%02X: %w", cfg.RightAddr, err)
	}
	e := NewEyes(left, right, cfg.Width, cfg.Height)
	e.closer = bus.Close
	return e, nil
}

// SetEyes shows expr on both displays.  Both displays are attempted even when
// the first fails.
func (e *Eyes) SetEyes(expr Expression) error {
	frames, ok := e.frames[expr]
	if !ok {
		return fmt.Errorf("no frames for %s", expr)
	}
	var errs []error
	for i, d := range []Display{e.left, e.right} {
		if err := d.Draw(frames[i].Bounds(), frames[i], image.Point{}); err != nil {
			errs = append(errs, fmt.Errorf("%s eye: %w", Side(i), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the bus.  The panels keep showing the last frame.
func (e *Eyes) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// logDisplay stands in for a panel on development machines.
type logDisplay struct {
	side   Side
	logger *slog.Logger
}

func (d logDisplay) Draw(r image.Rectangle, src image.Image, _ image.Point) error {
	lit := 0
	if frame, ok := src.(*image1bit.VerticalLSB); ok {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if frame.BitAt(x, y) == image1bit.On {
					lit++
				}
			}
		}
	}
	d.logger.Debug("draw", "side", d.side.String(), "lit_pixels", lit)
	return nil
}
