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


package stats

import (
	"fmt"
	"math"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/fringe/internal/qsort"
)

// Statistics on a data array, calculated lazily on first access and cached.
// Call Clear() after mutating the underlying data.
type Stats struct {
	data  []float32 // the underlying data, not owned
	width int32     // line width for noise estimation

	min, mean, max float32
	haveMMM        bool

	stdDev     float32
	haveStdDev bool

	location, scale float32
	haveLocScale    bool

	noise     float32
	haveNoise bool
}

// Enumerated type for location and scale estimator modes
type LSEstimatorMode int
const (
	LSEMeanStdDev LSEstimatorMode = iota
	LSEMedianMAD
	LSEIKSS
	LSESCMedianQn
	LSEHistogram
)

// Global mode selection for location and scale estimation
var LSEstimator LSEstimatorMode = LSESCMedianQn

const numLSESamples=128*1024

// Creates statistics on the given data array
func NewStats(data []float32, width int32) *Stats {
	return &Stats{data: data, width: width}
}

// Creates statistics on the given data array, with min, max and mean known from an earlier pass
func NewStatsWithMMM(data []float32, width int32, min, max, mean float32) *Stats {
	return &Stats{data: data, width: width, min: min, mean: mean, max: max, haveMMM: true}
}

// Invalidates all cached values, e.g. after the data was modified in place
func (s *Stats) Clear() {
	s.haveMMM, s.haveStdDev, s.haveLocScale, s.haveNoise=false, false, false, false
}

func (s *Stats) Min() float32 {
	if !s.haveMMM {
		s.min, s.mean, s.max=calcMinMeanMax(s.data)
		s.haveMMM=true
	}
	return s.min
}

func (s *Stats) Max() float32 {
	if !s.haveMMM {
		s.min, s.mean, s.max=calcMinMeanMax(s.data)
		s.haveMMM=true
	}
	return s.max
}

func (s *Stats) Mean() float32 {
	if !s.haveMMM {
		s.min, s.mean, s.max=calcMinMeanMax(s.data)
		s.haveMMM=true
	}
	return s.mean
}

func (s *Stats) StdDev() float32 {
	if !s.haveStdDev {
		variance:=calcVariance(s.data, s.Mean())
		s.stdDev=float32(math.Sqrt(variance))
		s.haveStdDev=true
	}
	return s.stdDev
}

// Returns the selected location indicator (standard: randomized sigma-clipped median using randomized Qn)
func (s *Stats) Location() float32 {
	if !s.haveLocScale { s.calcLocationScale() }
	return s.location
}

// Returns the selected scale indicator (standard: randomized Qn)
func (s *Stats) Scale() float32 {
	if !s.haveLocScale { s.calcLocationScale() }
	return s.scale
}

// Returns the noise estimate, calculated on first access (expensive)
func (s *Stats) Noise() float32 {
	if !s.haveNoise {
		s.noise=EstimateNoise(s.data, s.width)
		s.haveNoise=true
	}
	return s.noise
}

// Estimates location and scale based on the globally selected estimator mode
func (s *Stats) calcLocationScale() {
	numSamples:=numLSESamples
	if numSamples>len(s.data) { numSamples=len(s.data) }

	switch LSEstimator {
	case LSEMeanStdDev:
		s.location, s.scale=s.Mean(), s.StdDev()
	case LSEMedianMAD:
		samples:=make([]float32, numSamples)
		s.location=FastApproxMedian(s.data, samples)
		s.scale   =FastApproxMAD(s.data, s.location, samples)
		samples=nil
	case LSEIKSS:
		s.location, s.scale=IKSS(s.data, 1e-6, float32(math.Pow(2,-23)))
	case LSESCMedianQn:
		s.location, s.scale=FastApproxSigmaClippedMedianAndQn(s.data, 2, 2, (s.Max()-s.Min())/65535.0, numSamples)
	case LSEHistogram:
		s.location, s.scale=HistogramScaleLoc(s.data, s.Min(), s.Max(), 4096)
	}
	s.haveLocScale=true
}

// Pretty print statistics to string. Forces evaluation of all lazy values
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g Noise %.4g",
	                 	s.Min(), s.Max(), s.Mean(), s.StdDev(), s.Location(), s.Scale(), s.Noise())
}


func MeanStdDev(xs []float32) (mean, stdDev float32) {
	// calculate base statistics for xs
	xmean:=float32(0)
	for _,x:=range(xs) { xmean+=x }
	xmean/=float32(len(xs))
	xvar:=float32(0)
	for _,x:=range(xs) { diff:=x-xmean; xvar+=diff*diff }
	xvar/=float32(len(xs))
	xstddev:=float32(math.Sqrt(float64(xvar)))
	return xmean, xstddev
}

// Calculate minimum, mean and maximum of given data
func calcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmean, mmax:=float32(data[0]), float64(0), float32(data[0])
	for _,v := range data {
		if v<mmin {
			mmin=v
		}
		if v>mmax {
			mmax=v
		}
		mmean+=float64(v)
	}
	return mmin, float32(mmean/float64(len(data))), mmax
}

// Calculate variance of given data from provided mean
func calcVariance(data []float32, mean float32) (result float64) {
	variance:=float64(0)
	for _,v :=range data {
		diff:=float64(v-mean)
		variance+=diff*diff
	}
	return variance/float64(len(data))
}


// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i,_:=range samples {
		index:=rng.Uint32n(max)
		samples[i]=data[index]
	}
	median:=qsort.QSelectMedianFloat32(samples)
	return median
}

// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxBoundedMedian(data []float32, lowBound, highBound float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i,_:=range samples {
		var d float32
		for {
			d=data[rng.Uint32n(max)]
			if d>=lowBound && d<=highBound { break }
		}
		samples[i]=d
	}
	median:=qsort.QSelectMedianFloat32(samples)
	return median
}

// Calculates fast approximate median of absolute differences of the (presumably large) data by subsampling the given number of values and taking the MAD of that.
func FastApproxMAD(data []float32, location float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i,_:=range samples {
		index:=rng.Uint32n(max)
		samples[i]=float32(math.Abs(float64(data[index]-location)))
	}
	mad:=qsort.QSelectMedianFloat32(samples)*1.4826  // normalize to Gaussian std dev.
	return mad
}

// Calculates fast approximate Qn scale estimate of the (presumably large) data by subsampling the given number of pairs and taking the first quartile of that.
// Original paper http://web.ipac.caltech.edu/staff/fmasci/home/astro_refs/BetterThanMAD.pdf
// Original n*log n implementation technical report https://www.researchgate.net/profile/Christophe_Croux/publication/228595593_Time-Efficient_Algorithms_for_Two_Highly_Robust_Estimators_of_Scale/links/09e4150f52c2fcabb0000000/Time-Efficient-Algorithms-for-Two-Highly-Robust-Estimators-of-Scale.pdf
// Sampling approach appears to be mine
func FastApproxQn(data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i,_:=range samples {
		index1:=1+rng.Uint32n(max-1)
		index2:=rng.Uint32n(index1)
		samples[i]=float32(math.Abs(float64(data[index1]-data[index2])))
	}
	qn:=qsort.QSelectFirstQuartileFloat32(samples)*2.21914  // normalize to Gaussian std dev, for large numSamples >>1000.
	// Original paper had wrong constant, source for constant https://rdrr.io/cran/robustbase/man/Qn.html
	return qn
}

// Calculates fast approximate Qn scale estimate of the (presumably large) data by subsampling the given number of pairs and taking the first quartile of that.
func FastApproxBoundedQn(data []float32, lowBound, highBound float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i,_:=range samples {
		var d1, d2 float32
		for {
			index1:=1+rng.Uint32n(max-1)
			d1=data[index1]
			if d1< lowBound || d1> highBound { continue }
			d2=data[rng.Uint32n(index1)]
			if d2>=lowBound && d2<=highBound { break    }
		}
		samples[i]=float32(math.Abs(float64(d1-d2)))
	}
	qn:=qsort.QSelectFirstQuartileFloat32(samples)*2.21914  // normalize to Gaussian std dev, for large numSamples >>1000
	// Original paper had wrong constant, source for constant https://rdrr.io/cran/robustbase/man/Qn.html
	samples=nil
	return qn
}


// Returns a rapid robust estimation of location and scale. Uses a fast approximate median based on randomized sampling,
// iteratively sigma clipped with a fast approximate Qn based on random sampling. Exits once the absolute change in
// location and scale is below epsilon.
func FastApproxSigmaClippedMedianAndQn(data []float32, sigmaLow, sigmaHigh float32, epsilon float32, numSamples int) (location, scale float32) {
	samples:=make([]float32, numSamples)
	location=FastApproxMedian(data, samples) // sampling
	scale   =FastApproxQn    (data, samples) // sampling

	for i:=0; ; i++ {
		lowBound :=location - sigmaLow*scale
		highBound:=location + sigmaLow*scale

		newLocation:=FastApproxBoundedMedian(data, lowBound, highBound, samples) // sampling
		newScale   :=FastApproxBoundedQn    (data, lowBound, highBound, samples) // sampling
		newScale   *=1.134                                    // adjust for subsequent clipping

		// once converged, return results
		if float32(math.Abs(float64(newLocation-location))+math.Abs(float64(newScale-scale)))<=epsilon || i>=10 {
			scale=FastApproxQn(data, samples) // sampling
			samples=nil
			return location, scale
		}

		location, scale = newLocation, newScale
	}
}


// Returns the biweight midvariance of the xs. tmp must be same length as xs, is used as temp storage
func bwmv(xs []float32, median float32, tmp []float32) float32 {
	mads:=tmp[:len(xs)]
	for i,x:=range xs {
		mads[i]=float32(math.Abs(float64(x-median)))
	}
	mad:=qsort.QSelectMedianFloat32(mads)
	mads=nil

	ys:=tmp[:len(xs)]
	for i,x:=range xs {
		ys[i]=(x-median)/(9*mad)
	}

	numSum, denomSum:=float32(0), float32(0)
	for i,x:=range xs {
		y:=ys[i]
		a:=float32(0)
		if y>-1 && y<1 { a=float32(1) }

		xMinusM:=x-median
		oneMinusYSquared:=1-y*y
		oneMinusYSquaredSquared:=oneMinusYSquared*oneMinusYSquared
		numSum+=a*xMinusM*xMinusM*oneMinusYSquaredSquared*oneMinusYSquaredSquared

		oneMinus5YSquared:=1-5*y*y
		denomSum+=a*oneMinusYSquared*oneMinus5YSquared
	}
	return float32(len(xs))*numSum/(denomSum*denomSum)
}


// Returns the iterative k-sigma estimators of locations and scale
func IKSS(data []float32, epsilon float32, e float32) (location, scale float32) {
   	xs :=make([]float32,len(data))
   	copy(xs, data)
   	qsort.QSortFloat32(xs)

   	tmp:=make([]float32,len(data))

   	i, j:=0, len(xs)
   	s0:=float32(1)
   	for {
   		if j-i<1              { return 0, 0 }
   		m:=xs[(i+j)>>1]       // median is easy as xs are sorted
   		s:=float32(math.Sqrt(float64(bwmv(xs[i:j], m, tmp))))
   		if s<epsilon          { return m, 0 }
   		if s0-s < s*epsilon   { return m, 0.991*s }
   		s0=s
   		xlow :=m-4*s
   		xhigh:=m+4*s
   		for xs[i]<xlow {
   			i++
   		}
   		for xs[j-1]>xhigh {
   			j--
   		}
   	}
}


// Calculate scale and location based on a histogram of the data
func HistogramScaleLoc(data []float32, min, max float32, numBins int) (loc, scale float32) {
	// deal with edge case
	if min==max { return min, 0 }

	bins:=make([]int32, numBins)
	Histogram(data, min, max, bins)
	valueToBin:=float32(numBins-1)/(max-min)

	// find inner peak (avoid edges which may be distorted by clipping)
	peakBin, peakCount:=0, int32(0)
	for bin, count:=range(bins[1:numBins-1]) {
		if count>peakCount {
			peakBin, peakCount=bin+1, count
		}
	}
	loc=min+float32(peakBin)/valueToBin

	// Find standard deviation around the histogram peak by cumulating adjacent bins until one sigma threshold of 68.27% is reached
	// See https://en.wikipedia.org/wiki/68%E2%80%9395%E2%80%9399.7_rule
	sigmaThreshold:=int32(float32(len(data))*0.6827)
	intervalLimit:=peakBin
	if numBins-1-peakBin<intervalLimit {
		intervalLimit=numBins-1-peakBin
	}
	cum:=peakCount
	scale=0.5*float32(1.0)/valueToBin

	if cum<sigmaThreshold {
		for i:=1; i<=intervalLimit; i++ {
			cum=cum+bins[peakBin-i]+bins[peakBin+i]
			scale=0.5*float32(2*i+1)/valueToBin
			if cum>=sigmaThreshold {
				break
			}
		}
	}
	return loc, scale
}
