package main

import (
	"errors"
	"image"
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func lit(f *image1bit.VerticalLSB, x, y int) bool {
	return f.BitAt(x, y) == image1bit.On
}

func TestRenderEyeShapes(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		side Side
		on   []image.Point
		off  []image.Point
	}{
		{"neutral", ExpressionNeutral, SideLeft, []image.Point{{64, 40}, {50, 26}}, []image.Point{{0, 0}, {40, 40}}},
		{"welcome ring", ExpressionWelcome, SideLeft, []image.Point{{33, 40}, {94, 40}}, []image.Point{{64, 40}, {10, 40}}},
		{"angry left", ExpressionAngry, SideLeft, []image.Point{{60, 35}, {25, 30}}, []image.Point{{25, 45}, {60, 10}}},
		{"angry right", ExpressionAngry, SideRight, []image.Point{{60, 35}, {25, 45}}, []image.Point{{25, 22}, {60, 55}}},
		{"sleep", ExpressionSleep, SideRight, []image.Point{{64, 32}, {40, 32}}, []image.Point{{64, 40}, {64, 28}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := RenderEye(tt.expr, tt.side, 128, 64)
			for _, p := range tt.on {
				if !lit(f, p.X, p.Y) {
					t.Errorf("pixel %v off, want on", p)
				}
			}
			for _, p := range tt.off {
				if lit(f, p.X, p.Y) {
					t.Errorf("pixel %v on, want off", p)
				}
			}
		})
	}
}

func TestRenderEyeScales(t *testing.T) {
	f := RenderEye(ExpressionNeutral, SideLeft, 128, 32)
	if got := f.Bounds(); got != image.Rect(0, 0, 128, 32) {
		t.Fatalf("bounds = %v", got)
	}
	if !lit(f, 64, 20) || lit(f, 64, 8) {
		t.Fatal("neutral block not scaled to the half-height panel")
	}
}

type fakeDisplay struct {
	frames int
	last   image.Image
	err    error
}

func (d *fakeDisplay) Draw(_ image.Rectangle, src image.Image, _ image.Point) error {
	d.frames++
	d.last = src
	return d.err
}

func TestEyesSetEyesDrawsBothSides(t *testing.T) {
	left, right := &fakeDisplay{}, &fakeDisplay{}
	e := NewEyes(left, right, 128, 64)
	if err := e.SetEyes(ExpressionAngry); err != nil {
		t.Fatalf("SetEyes: %v", err)
	}
	if left.frames != 1 || right.frames != 1 {
		t.Fatalf("frames = %d/%d", left.frames, right.frames)
	}
	if left.last == right.last {
		t.Fatal("angry eyes should differ per side")
	}
}

func TestEyesSetEyesJoinsErrors(t *testing.T) {
	nack := errors.New("i2c nack")
	left, right := &fakeDisplay{err: nack}, &fakeDisplay{}
	e := NewEyes(left, right, 128, 64)
	err := e.SetEyes(ExpressionWelcome)
	if !errors.Is(err, nack) {
		t.Fatalf("SetEyes err = %v", err)
	}
	if right.frames != 1 {
		t.Fatal("right eye skipped after left failure")
	}
}

func TestOpenEyesNoneBackend(t *testing.T) {
	cfg := DefaultConfig().Display
	cfg.Backend = "none"
	e, err := OpenEyes(cfg, testLogger())
	if err != nil {
		t.Fatalf("OpenEyes: %v", err)
	}
	if err := e.SetEyes(ExpressionSleep); err != nil {
		t.Fatalf("SetEyes: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
