// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package frame

import (
	"fmt"
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mlnoga/fringe/internal/measure"
)

// Renders the attached measurement onto an RGB copy of the frame for human
// verification. Band results get markers at the run boundaries, peak results
// a colored marker per peak with inter-peak gap labels, and autocorrelation
// results a periodic grid at multiples of the spacing. A frame without
// usable results comes back as a plain copy, never an error.
func (f *Frame) RenderOverlay() *Frame {
	res:=f.toRGB()
	m:=f.Measure
	if m==nil { return res }

	canvas:=&rgbCanvas{data: res.Data, width: int(res.Width()), height: int(res.Height())}
	switch {
	case m.Method==measure.MethodBand && m.Ok:
		drawBand(canvas, m)
	case len(m.Peaks)>0:
		drawPeakMarkers(canvas, m)
	case m.Ok && m.SpacingPx>0:
		drawGrid(canvas, m.SpacingPx)
	}
	res.Stats.Clear()
	return res
}

// Returns a 3 channel copy of the frame, replicating mono data into all planes
func (f *Frame) toRGB() *Frame {
	w, h:=f.Width(), f.Height()
	size:=int(w)*int(h)
	data:=make([]float32, 3*size)
	if f.Channels()>=3 {
		copy(data, f.Data[:3*size])
	} else {
		copy(data[       :  size], f.Data[:size])
		copy(data[size   :2*size], f.Data[:size])
		copy(data[2*size :      ], f.Data[:size])
	}
	res:=NewFrameFromNaxisn([]int32{w, h, 3}, data)
	res.ID, res.FileName, res.Resized, res.Measure=f.ID, f.FileName, f.Resized, f.Measure
	return res
}

func drawBand(c *rgbCanvas, m *measure.Result) {
	col:=color.RGBA{255, 128, 0, 255}
	c.verticalLine(m.RunStart, col)
	c.verticalLine(m.RunEnd-1, col)
	label:=fmt.Sprintf("%.0f px", m.WidthPx)
	if m.Refined { label=fmt.Sprintf("%.1f px", m.RefinedWidthPx) }
	c.label(label, (m.RunStart+m.RunEnd)/2, 12, col)
}

func drawPeakMarkers(c *rgbCanvas, m *measure.Result) {
	numPeaks:=len(m.Peaks)
	for i,p:=range m.Peaks {
		// hue ramp across the peaks for visual correspondence with the gaps
		hue:=360.0*float64(i)/float64(numPeaks)
		r, g, b:=colorful.Hcl(hue, 0.5, 0.7).Clamped().RGB255()
		col:=color.RGBA{r, g, b, 255}
		c.verticalLine(int(p), col)

		if i>0 {
			gap:=p-m.Peaks[i-1]
			mid:=int(m.Peaks[i-1]+p)/2
			c.label(fmt.Sprintf("%d", gap), mid, 12+13*(i%2), col)
		}
	}
}

func drawGrid(c *rgbCanvas, spacing float32) {
	step:=int(spacing+0.5)
	if step<1 { return }
	col:=color.RGBA{0, 255, 128, 255}
	for x:=step; x<c.width; x+=step {
		c.verticalLine(x, col)
	}
	c.label(fmt.Sprintf("%.1f px", spacing), c.width/2, 12, col)
}

// rgbCanvas adapts the planar float32 data of an RGB frame as a drawable
// image, so font rendering can write into the frame directly
type rgbCanvas struct {
	data          []float32
	width, height int
}

func (c *rgbCanvas) ColorModel() color.Model { return color.RGBAModel }

func (c *rgbCanvas) Bounds() image.Rectangle { return image.Rect(0, 0, c.width, c.height) }

func (c *rgbCanvas) At(x, y int) color.Color {
	if x<0 || x>=c.width || y<0 || y>=c.height { return color.RGBA{} }
	size:=c.width*c.height
	i:=y*c.width+x
	return color.RGBA{clamp8(c.data[i]), clamp8(c.data[i+size]), clamp8(c.data[i+2*size]), 255}
}

func (c *rgbCanvas) Set(x, y int, col color.Color) {
	if x<0 || x>=c.width || y<0 || y>=c.height { return }
	r, g, b, _:=col.RGBA()
	size:=c.width*c.height
	i:=y*c.width+x
	c.data[i       ]=float32(r)/65535.0
	c.data[i+size  ]=float32(g)/65535.0
	c.data[i+2*size]=float32(b)/65535.0
}

func (c *rgbCanvas) verticalLine(x int, col color.Color) {
	for y:=0; y<c.height; y++ {
		c.Set(x, y, col)
	}
}

// Draws the text centered around column x with its baseline at row y
func (c *rgbCanvas) label(text string, x, y int, col color.Color) {
	d:=&font.Drawer{
		Dst:  c,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
	}
	textWidth:=d.MeasureString(text).Ceil()
	d.Dot=fixed.P(x-textWidth/2, y)
	d.DrawString(text)
}

func clamp8(v float32) uint8 {
	if v<=0 { return 0 }
	if v>=1 { return 255 }
	return uint8(v*255+0.5)
}
