// Package chart renders a dataset as a PNG line chart with one series per location.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/groundwater/internal/models"
)

// Default chart dimensions.
const (
	Width  = 960
	Height = 480
)

const (
	marginLeft   = 70
	marginRight  = 160
	marginTop    = 40
	marginBottom = 50
	gridLines    = 5
)

var (
	ErrEmptyDataset = errors.New("dataset has no rows")
	// ErrValueRange is returned when the value span cannot be represented as a float64.
	ErrValueRange = errors.New("dataset value range too large to plot")
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisColor  = color.RGBA{60, 60, 60, 255}
	gridColor  = color.RGBA{225, 225, 225, 255}
	textColor  = color.RGBA{40, 40, 40, 255}
)

// Palette is cycled through when more locations than colours are plotted.
var Palette = []color.RGBA{
	{31, 119, 180, 255},
	{255, 127, 14, 255},
	{44, 160, 44, 255},
	{214, 39, 40, 255},
	{148, 103, 189, 255},
	{140, 86, 75, 255},
	{227, 119, 194, 255},
	{127, 127, 127, 255},
}

// Render draws the dataset's water level against time.
func Render(ds models.Dataset) ([]byte, error) {
	img, err := draw(ds, Width, Height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

type bounds struct {
	tMin, tMax time.Time
	vMin, vMax float64
}

func extent(rows []models.Row) bounds {
	b := bounds{tMin: rows[0].Timestamp, tMax: rows[0].Timestamp, vMin: rows[0].Value, vMax: rows[0].Value}
	for _, r := range rows[1:] {
		if r.Timestamp.Before(b.tMin) {
			b.tMin = r.Timestamp
		}
		if r.Timestamp.After(b.tMax) {
			b.tMax = r.Timestamp
		}
		b.vMin = math.Min(b.vMin, r.Value)
		b.vMax = math.Max(b.vMax, r.Value)
	}
	// Pad flat series so they sit mid-plot.
	if b.vMax == b.vMin {
		b.vMin -= 1
		b.vMax += 1
	}
	if !b.tMax.After(b.tMin) {
		b.tMin = b.tMin.Add(-12 * time.Hour)
		b.tMax = b.tMax.Add(12 * time.Hour)
	}
	return b
}

func draw(ds models.Dataset, w, h int) (*image.RGBA, error) {
	if len(ds.Rows) == 0 {
		return nil, ErrEmptyDataset
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, background)

	b := extent(ds.Rows)
	if math.IsInf(b.vMax-b.vMin, 0) {
		return nil, ErrValueRange
	}
	plotW := w - marginLeft - marginRight
	plotH := h - marginTop - marginBottom

	px := func(t time.Time) int {
		frac := float64(t.Sub(b.tMin)) / float64(b.tMax.Sub(b.tMin))
		return marginLeft + int(math.Round(frac*float64(plotW)))
	}
	py := func(v float64) int {
		frac := (v - b.vMin) / (b.vMax - b.vMin)
		return marginTop + plotH - int(math.Round(frac*float64(plotH)))
	}

	for i := 0; i <= gridLines; i++ {
		v := b.vMin + (b.vMax-b.vMin)*float64(i)/gridLines
		y := py(v)
		line(img, marginLeft, y, marginLeft+plotW, y, gridColor)
		label := fmt.Sprintf("%.2f", v)
		drawText(img, label, marginLeft-8-textWidth(label), y+4, textColor)
	}

	line(img, marginLeft, marginTop, marginLeft, marginTop+plotH, axisColor)
	line(img, marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH, axisColor)

	start := b.tMin.Format(models.DateLayout)
	end := b.tMax.Format(models.DateLayout)
	drawText(img, start, marginLeft, marginTop+plotH+20, textColor)
	drawText(img, end, marginLeft+plotW-textWidth(end), marginTop+plotH+20, textColor)
	drawText(img, "Water level (m)", marginLeft, marginTop-15, textColor)

	for i, loc := range ds.Locations() {
		col := Palette[i%len(Palette)]
		prevX, prevY, started := 0, 0, false
		for _, r := range ds.Rows {
			if r.Location != loc {
				continue
			}
			x, y := px(r.Timestamp), py(r.Value)
			if started {
				line(img, prevX, prevY, x, y, col)
			}
			dot(img, x, y, col)
			prevX, prevY, started = x, y, true
		}

		ly := marginTop + 10 + i*20
		lx := marginLeft + plotW + 20
		for dx := 0; dx < 16; dx++ {
			dot(img, lx+dx, ly-4, col)
		}
		drawText(img, loc, lx+22, ly, textColor)
	}

	return img, nil
}

func fill(img *image.RGBA, c color.RGBA) {
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// line draws a segment using Bresenham's algorithm.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func dot(img *image.RGBA, x, y int, c color.RGBA) {
	for oy := -1; oy <= 1; oy++ {
		for ox := -1; ox <= 1; ox++ {
			img.SetRGBA(x+ox, y+oy, c)
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
