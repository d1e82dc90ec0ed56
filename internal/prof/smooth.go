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

import (
	"math"
)

const sqrt2 float32 = math.Sqrt2

// Check if coordinate is within [0, size-1], and if not, reflect out of bounds coordinates back into the value range
func reflect(size, x int) int {
	if(x < 0) {
	  return -x - 1;
	}
	if(x >= size) {
	  return 2*size - x - 1;
	}
	return x;
}

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func GaussianDefiniteIntegral(mu, sigma, x float32) float32 {
	return 0.5 * (1 + float32(math.Erf(   float64((x-mu)/(sqrt2 * sigma)) )) )
}

// Generates a 1D gaussian kernel for the given sigma. Based on symbolic integration via error function
func GaussianKernel1D(sigma float32) (kernel []float32) {
	mu          :=float32(0)

	// Find minimal kernel width for which the area under the curve left of the kernel is below the acceptable error
	acceptOut   :=float32(0.01)
	radius      :=0
	for {
		val:=GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius))
		if val < acceptOut {
			radius--
			break
		}
		radius++
	}
	if radius<0 { radius=0 }  // tiny sigmas reduce to a single-tap kernel
	width       :=2*radius+1
	kernel       =make([]float32, width)

	// Calculate left half of the kernel via symbolic integration
	sum         :=float32(0)
	lower       :=GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius)             )
	for i:=0; i<=radius; i++ {
		upper   :=GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius)+float32(i+1))
		delta   :=upper - lower
		kernel[i]=delta
		sum     +=delta
		lower    =upper
	}

	// Mirror right half of the kernel to avoid numeric instability
	for i:=1; i<=radius; i++ {
		value             := kernel[radius - i]
		kernel[radius + i] = value
		sum               += value
	}

	// Normalize the sum of the kernel to 1, for dealing with the truncated part of the distribution.
	factor:=1.0/sum
	for i,_:=range(kernel) { kernel[i]*=factor }
	return kernel
}

// Convolve the given 1D profile with the given convolution kernel, reflecting at the boundaries, and store the result in res
func Convolve1D(res, profile []float32, kernel []float32) {
	k := len(kernel) / 2
	for x:=0; x<len(profile); x++ {
		sum := float32(0.0)
		for i := -k; i <=k; i++ {
			x1 := reflect(len(profile), x+i)
			sum+= profile[x1]*kernel[i+k]
		}
		res[x] = sum
	}
}

// Smooths a profile with a gaussian kernel of the given standard deviation
// and returns the result in a newly allocated array. Sigma 0 disables
// smoothing and returns the profile unchanged.
func Smooth(profile []float32, sigma float32) []float32 {
	if sigma<=0 || len(profile)==0 { return profile }
	kernel:=GaussianKernel1D(sigma)
	res:=make([]float32, len(profile))
	Convolve1D(res, profile, kernel)
	return res
}
