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
	"math"
	"path/filepath"
	"strings"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/stats"
)

// A fringe pattern image in planar float32 samples, with measurement results
// attached as they are computed by the processing operators
type Frame struct {
	ID       int      // unique for deterministic logging
	FileName string
	Naxisn   []int32  // width, height and optionally channel count
	Pixels   int32    // number of samples, product of the axes
	Data     []float32

	Stats   *stats.Stats
	Resized bool // true once downscaled to the working dimension

	Profile     []float32 // column intensity profile, nil until extracted
	EdgeProfile []float32 // column edge magnitude profile, nil until extracted
	Measure     *measure.Result
}

func NewFrame() *Frame {
	return &Frame{}
}

// Creates a frame with the given dimensions, allocating the data array if nil
func NewFrameFromNaxisn(naxisn []int32, data []float32) *Frame {
	numPixels:=int32(1)
	for _,naxis:=range naxisn { numPixels*=naxis }
	if data==nil { data=make([]float32, numPixels) }
	return &Frame{
		Naxisn: append([]int32(nil), naxisn...),
		Pixels: numPixels,
		Data:   data,
		Stats:  stats.NewStats(data, naxisn[0]),
	}
}

func (f *Frame) Width() int32 {
	if len(f.Naxisn)<1 { return 0 }
	return f.Naxisn[0]
}

func (f *Frame) Height() int32 {
	if len(f.Naxisn)<2 { return 0 }
	return f.Naxisn[1]
}

func (f *Frame) Channels() int32 {
	if len(f.Naxisn)<3 { return 1 }
	return f.Naxisn[2]
}

// Returns the base file name without directory or extension, for deriving
// output file names. Falls back to the frame id when no file name is set
func (f *Frame) Stem() string {
	if f.FileName=="" { return fmt.Sprintf("%d", f.ID) }
	base:=filepath.Base(f.FileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (f *Frame) DimensionsToString() string {
	b:=strings.Builder{}
	for i,naxis:=range(f.Naxisn) {
		if i>0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Collapses a color frame into a single grayscale channel, using rec. 709
// luminance weights when luminance is true, else the per-pixel channel mean.
// Mono frames are returned unchanged.
func (f *Frame) ToGray(luminance bool) *Frame {
	if f.Channels()==1 { return f }
	w, h:=f.Width(), f.Height()
	size:=int(w)*int(h)
	data:=make([]float32, size)
	r, g, b:=f.Data[:size], f.Data[size:2*size], f.Data[2*size:3*size]
	if luminance {
		for i:=range data { data[i]=0.2126*r[i]+0.7152*g[i]+0.0722*b[i] }
	} else {
		for i:=range data { data[i]=(r[i]+g[i]+b[i])*(1.0/3.0) }
	}
	res:=NewFrameFromNaxisn([]int32{w, h}, data)
	res.ID, res.FileName, res.Resized=f.ID, f.FileName, f.Resized
	return res
}

// Downscales the frame with bilinear resampling so its longest side does not
// exceed maxDim, bounding the cost of all later processing. A maxDim of zero
// or a frame already within bounds is returned unchanged. Color frames are
// resampled per channel.
func (f *Frame) Resize(maxDim int) *Frame {
	if maxDim<=0 { return f }
	w, h:=int(f.Width()), int(f.Height())
	long:=w
	if h>long { long=h }
	if long<=maxDim || long==0 { return f }

	scale:=float32(maxDim)/float32(long)
	dw, dh:=int(float32(w)*scale+0.5), int(float32(h)*scale+0.5)
	if dw<1 { dw=1 }
	if dh<1 { dh=1 }

	channels:=int(f.Channels())
	data:=make([]float32, dw*dh*channels)
	for c:=0; c<channels; c++ {
		src:=f.Data[c*w*h:(c+1)*w*h]
		dst:=data[c*dw*dh:(c+1)*dw*dh]
		resampleBilinear(dst, src, w, h, dw, dh)
	}

	naxisn:=[]int32{int32(dw), int32(dh)}
	if channels>1 { naxisn=append(naxisn, int32(channels)) }
	res:=NewFrameFromNaxisn(naxisn, data)
	res.ID, res.FileName=f.ID, f.FileName
	res.Resized=true
	return res
}

// Samples src of dimensions sw x sh into dst of dimensions dw x dh with
// bilinear interpolation, clamping sample coordinates at the borders
func resampleBilinear(dst, src []float32, sw, sh, dw, dh int) {
	xScale:=float32(sw)/float32(dw)
	yScale:=float32(sh)/float32(dh)
	for row:=0; row<dh; row++ {
		sy:=(float32(row)+0.5)*yScale-0.5
		yl:=int(math.Floor(float64(sy)))
		yr:=sy-float32(yl)
		yh:=yl+1
		if yl<0   { yl=0    }
		if yh>=sh { yh=sh-1 }
		for col:=0; col<dw; col++ {
			sx:=(float32(col)+0.5)*xScale-0.5
			xl:=int(math.Floor(float64(sx)))
			xr:=sx-float32(xl)
			xh:=xl+1
			if xl<0   { xl=0    }
			if xh>=sw { xh=sw-1 }

			vyl:=src[yl*sw+xl]*(1-xr)+src[yl*sw+xh]*xr
			vyh:=src[yh*sw+xl]*(1-xr)+src[yh*sw+xh]*xr
			dst[row*dw+col]=vyl*(1-yr)+vyh*yr
		}
	}
}
