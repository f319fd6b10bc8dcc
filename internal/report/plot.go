package report

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// series maps a year to a value.
type series map[int]float64

func (s series) years() []int {
	ys := make([]int, 0, len(s))
	for y := range s {
		ys = append(ys, y)
	}
	sort.Ints(ys)
	return ys
}

func (s series) first() int {
	ys := s.years()
	if len(ys) == 0 {
		return 0
	}
	return ys[0]
}

// from drops every year before year.
func (s series) from(year int) series {
	out := make(series, len(s))
	for y, v := range s {
		if y >= year {
			out[y] = v
		}
	}
	return out
}

func (s series) max() float64 {
	m := math.Inf(-1)
	for _, v := range s {
		m = math.Max(m, v)
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}

type line struct {
	label string
	color string
	data  series
}

// band shades the area between two series. A nil lower series means zero.
type band struct {
	upper, lower series
	color        string
	alpha        float64
}

type chart struct {
	title  string
	yLabel string
	lines  []line
	bands  []band
	yMax   float64
}

const (
	plotWidth  = 1200
	plotHeight = 660

	marginLeft   = 90.0
	marginRight  = 40.0
	marginTop    = 70.0
	marginBottom = 120.0
)

type fonts struct {
	title, label, tick font.Face
}

func loadFonts() (fonts, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return fonts{}, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return fonts{}, fmt.Errorf("parse bold font: %w", err)
	}
	return fonts{
		title: truetype.NewFace(bold, &truetype.Options{Size: 22}),
		label: truetype.NewFace(regular, &truetype.Options{Size: 15}),
		tick:  truetype.NewFace(regular, &truetype.Options{Size: 13}),
	}, nil
}

// frame maps data coordinates onto the plot area.
type frame struct {
	x0, x1, y0, y1 float64
}

func (f frame) px(year float64) float64 {
	if f.x1 == f.x0 {
		return marginLeft
	}
	return marginLeft + (year-f.x0)/(f.x1-f.x0)*(plotWidth-marginLeft-marginRight)
}

func (f frame) py(v float64) float64 {
	if f.y1 == f.y0 {
		return plotHeight - marginBottom
	}
	return plotHeight - marginBottom - (v-f.y0)/(f.y1-f.y0)*(plotHeight-marginTop-marginBottom)
}

func (c chart) frame() frame {
	f := frame{x0: math.Inf(1), x1: math.Inf(-1), y0: 0, y1: c.yMax}
	for _, l := range c.lines {
		for y, v := range l.data {
			f.x0 = math.Min(f.x0, float64(y))
			f.x1 = math.Max(f.x1, float64(y))
			f.y0 = math.Min(f.y0, v)
			f.y1 = math.Max(f.y1, v)
		}
	}
	if math.IsInf(f.x0, 1) {
		f.x0, f.x1 = 0, 1
	}
	if f.y1 <= f.y0 {
		f.y1 = f.y0 + 1
	}
	return f
}

// render draws the chart as a PNG at path.
func (c chart) render(path string, ff fonts) error {
	dc := gg.NewContext(plotWidth, plotHeight)
	dc.SetHexColor(colorSand)
	dc.Clear()

	f := c.frame()
	plotRight := plotWidth - marginRight
	plotBottom := plotHeight - marginBottom

	dc.SetHexColor(colorPanel)
	dc.DrawRectangle(marginLeft, marginTop, plotRight-marginLeft, plotBottom-marginTop)
	dc.Fill()

	c.drawGrid(dc, f, ff)

	for _, b := range c.bands {
		drawBand(dc, f, b)
	}
	for _, l := range c.lines {
		drawLine(dc, f, l)
	}

	dc.SetFontFace(ff.title)
	dc.SetHexColor(colorInk)
	dc.DrawStringAnchored(c.title, plotWidth/2, marginTop/2, 0.5, 0.5)

	dc.SetFontFace(ff.label)
	dc.SetHexColor(colorMuted)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 24, (marginTop+plotBottom)/2)
	dc.DrawStringAnchored(c.yLabel, 24, (marginTop+plotBottom)/2, 0.5, 0.5)
	dc.Pop()

	c.drawLegend(dc, ff)

	return dc.SavePNG(path)
}

func (c chart) drawGrid(dc *gg.Context, f frame, ff fonts) {
	dc.SetFontFace(ff.tick)
	dc.SetLineWidth(1)

	ystep := niceStep(f.y1-f.y0, 6)
	for v := math.Ceil(f.y0/ystep) * ystep; v <= f.y1+1e-9; v += ystep {
		y := f.py(v)
		dc.SetHexColor(colorGrid)
		dc.DrawLine(marginLeft, y, plotWidth-marginRight, y)
		dc.Stroke()
		dc.SetHexColor(colorMuted)
		dc.DrawStringAnchored(formatTick(v, ystep), marginLeft-10, y, 1, 0.5)
	}

	xstep := math.Max(1, niceStep(f.x1-f.x0, 10))
	for x := math.Ceil(f.x0/xstep) * xstep; x <= f.x1+1e-9; x += xstep {
		px := f.px(x)
		dc.SetHexColor(colorGrid)
		dc.DrawLine(px, marginTop, px, plotHeight-marginBottom)
		dc.Stroke()
		dc.SetHexColor(colorMuted)
		dc.DrawStringAnchored(strconv.Itoa(int(x)), px, plotHeight-marginBottom+18, 0.5, 0.5)
	}
}

func (c chart) drawLegend(dc *gg.Context, ff fonts) {
	dc.SetFontFace(ff.label)
	y := plotHeight - marginBottom + 55
	x := marginLeft
	for _, l := range c.lines {
		w, _ := dc.MeasureString(l.label)
		if x+36+w > plotWidth-marginRight {
			x = marginLeft
			y += 26
		}
		dc.SetHexColor(l.color)
		dc.SetLineWidth(4)
		dc.DrawLine(x, y, x+26, y)
		dc.Stroke()
		dc.SetHexColor(colorInk)
		dc.DrawStringAnchored(l.label, x+34, y, 0, 0.5)
		x += 34 + w + 30
	}
}

func drawLine(dc *gg.Context, f frame, l line) {
	years := l.data.years()
	if len(years) == 0 {
		return
	}
	dc.SetHexColor(l.color)
	dc.SetLineWidth(2.5)
	for i, y := range years {
		px, py := f.px(float64(y)), f.py(l.data[y])
		if i == 0 {
			dc.MoveTo(px, py)
		} else {
			dc.LineTo(px, py)
		}
	}
	dc.Stroke()
}

func drawBand(dc *gg.Context, f frame, b band) {
	var years []int
	for _, y := range b.upper.years() {
		if b.lower == nil {
			years = append(years, y)
		} else if _, ok := b.lower[y]; ok {
			years = append(years, y)
		}
	}
	if len(years) < 2 {
		return
	}

	c := parseHex(b.color)
	c.A = uint8(b.alpha * 255)
	dc.SetColor(c)

	for i, y := range years {
		px, py := f.px(float64(y)), f.py(b.upper[y])
		if i == 0 {
			dc.MoveTo(px, py)
		} else {
			dc.LineTo(px, py)
		}
	}
	for i := len(years) - 1; i >= 0; i-- {
		y := years[i]
		dc.LineTo(f.px(float64(y)), f.py(b.lower[y]))
	}
	dc.ClosePath()
	dc.Fill()
}

// parseHex converts "#rrggbb" into an opaque color.
func parseHex(hex string) color.NRGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// niceStep returns a 1/2/5 times power of ten step splitting span into at
// most n intervals.
func niceStep(span float64, n int) float64 {
	if span <= 0 {
		return 1
	}
	raw := span / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*mag >= raw {
			return m * mag
		}
	}
	return 10 * mag
}

func formatTick(v, step float64) string {
	if step >= 1 {
		return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
	}
	decimals := int(math.Ceil(-math.Log10(step)))
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
