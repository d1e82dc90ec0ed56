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


package prof

// Reduces a 2-D image of the given width to a 1-D profile of column means.
// Color images with planar channel layout are collapsed to luminance first,
// averaging the channels per pixel. Returns nil for zero-element input.
// The source data is read-only.
func ColumnMeans(data []float32, width, channels int32) []float32 {
	if len(data)==0 || width<=0 || channels<=0 { return nil }
	planePixels:=int32(len(data))/channels
	height:=planePixels/width
	if height<=0 { return nil }

	profile:=make([]float32, width)
	for x:=int32(0); x<width; x++ {
		sum:=float64(0)
		for y:=int32(0); y<height; y++ {
			i:=y*width+x
			if channels==1 {
				sum+=float64(data[i])
			} else {
				chSum:=float32(0)
				for ch:=int32(0); ch<channels; ch++ {
					chSum+=data[ch*planePixels+i]
				}
				sum+=float64(chSum/float32(channels))
			}
		}
		profile[x]=float32(sum/float64(height))
	}
	return profile
}

// Sums each column of a 2-D map into a 1-D profile, e.g. to turn an edge
// magnitude map into an edge energy profile. Returns nil for zero-element input.
func ColumnSums(data []float32, width int32) []float32 {
	if len(data)==0 || width<=0 { return nil }
	height:=int32(len(data))/width
	if height<=0 { return nil }

	profile:=make([]float32, width)
	for x:=int32(0); x<width; x++ {
		sum:=float64(0)
		for y:=int32(0); y<height; y++ {
			sum+=float64(data[y*width+x])
		}
		profile[x]=float32(sum)
	}
	return profile
}

// Normalizes a copy of the profile to [0,1] by subtracting the minimum and
// dividing by the maximum of the shifted values. Returns ok=false when that
// maximum is not positive, i.e. the profile is flat and carries no signal.
func Normalize(profile []float32) (normalized []float32, ok bool) {
	if len(profile)==0 { return nil, false }
	min:=profile[0]
	for _,p:=range profile {
		if p<min { min=p }
	}
	normalized=make([]float32, len(profile))
	max:=float32(0)
	for i,p:=range profile {
		v:=p-min
		normalized[i]=v
		if v>max { max=v }
	}
	if max<=0 { return nil, false }
	factor:=1.0/max
	for i:=range normalized { normalized[i]*=factor }
	return normalized, true
}
