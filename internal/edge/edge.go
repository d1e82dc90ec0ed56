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


package edge

import (
	"math"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/prof"
)

// Runs the edge pipeline on a 2D grayscale image: gaussian pre-blur, sobel
// gradient magnitude normalized to [0,1], then hysteresis thresholding.
// Returns a binary edge map of the same dimensions. The input is not modified.
func Detect(data []float32, width int32, s *measure.Settings) []float32 {
	if len(data)==0 || width<=0 { return nil }
	blurred:=Blur(data, width, s.BlurSigma)
	mag:=Sobel(blurred, width)
	normalizeMax(mag)
	return Hysteresis(mag, width, s.EdgeLow, s.EdgeHigh)
}

// Applies a gaussian blur of the given sigma to the 2D image via two
// separable 1D convolutions with reflected borders. A sigma of zero or less
// returns the input unchanged.
func Blur(data []float32, width int32, sigma float32) []float32 {
	if sigma<=0 || len(data)==0 { return data }
	kernel:=prof.GaussianKernel1D(sigma)
	tmp:=make([]float32, len(data))
	res:=make([]float32, len(data))
	convolve1DX(tmp, data, int(width), kernel)
	convolve1DY(res, tmp, int(width), kernel)
	return res
}

// Computes the gradient magnitude of the 2D image with 3x3 sobel operators,
// reflecting coordinates at the borders
func Sobel(data []float32, width int32) []float32 {
	w:=int(width)
	h:=len(data)/w
	res:=make([]float32, len(data))
	for y:=0; y<h; y++ {
		ym, yp:=reflect(h, y-1), reflect(h, y+1)
		for x:=0; x<w; x++ {
			xm, xp:=reflect(w, x-1), reflect(w, x+1)
			gx:=   data[ym*w+xp]+2*data[y*w+xp]+data[yp*w+xp]-
			       data[ym*w+xm]-2*data[y*w+xm]-data[yp*w+xm]
			gy:=   data[yp*w+xm]+2*data[yp*w+x]+data[yp*w+xp]-
			       data[ym*w+xm]-2*data[ym*w+x]-data[ym*w+xp]
			res[y*w+x]=float32(math.Sqrt(float64(gx*gx+gy*gy)))
		}
	}
	return res
}

// Keeps strong edge pixels at or above the high threshold, plus weak pixels
// at or above the low threshold that are 8-connected to a strong pixel.
// Returns a binary map with 1 at kept pixels.
func Hysteresis(mag []float32, width int32, low, high float32) []float32 {
	w:=int(width)
	h:=len(mag)/w
	res:=make([]float32, len(mag))
	stack:=make([]int, 0, 256)
	for i,v:=range mag {
		if v<high || res[i]!=0 { continue }
		res[i]=1
		stack=append(stack, i)
		for len(stack)>0 {
			j:=stack[len(stack)-1]
			stack=stack[:len(stack)-1]
			x, y:=j%w, j/w
			for dy:=-1; dy<=1; dy++ {
				for dx:=-1; dx<=1; dx++ {
					nx, ny:=x+dx, y+dy
					if nx<0 || nx>=w || ny<0 || ny>=h { continue }
					n:=ny*w+nx
					if res[n]==0 && mag[n]>=low {
						res[n]=1
						stack=append(stack, n)
					}
				}
			}
		}
	}
	return res
}

// Scales the data to [0,1] by its maximum, in place. All-zero data is left alone.
func normalizeMax(data []float32) {
	max:=float32(0)
	for _,d:=range data {
		if d>max { max=d }
	}
	if max<=0 { return }
	factor:=1.0/max
	for i:=range data { data[i]*=factor }
}

// Convolves the 2D image along the x axis, reflecting coordinates at the borders
func convolve1DX(res, data []float32, width int, kernel []float32) {
	height:=len(data)/width
	k:=len(kernel)/2
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			sum:=float32(0)
			for i:=-k; i<=k; i++ {
				x1:=reflect(width, x+i)
				sum+=data[y*width+x1]*kernel[i+k]
			}
			res[y*width+x]=sum
		}
	}
}

// Convolves the 2D image along the y axis, reflecting coordinates at the borders
func convolve1DY(res, data []float32, width int, kernel []float32) {
	height:=len(data)/width
	k:=len(kernel)/2
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			sum:=float32(0)
			for i:=-k; i<=k; i++ {
				y1:=reflect(height, y+i)
				sum+=data[y1*width+x]*kernel[i+k]
			}
			res[y*width+x]=sum
		}
	}
}

// Reflects out of bounds coordinates back into [0, size-1]
func reflect(size, x int) int {
	if x<0     { return -x-1 }
	if x>=size { return 2*size-x-1 }
	return x
}
