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


package band

import (
	"math"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/stats"
)

const fwhmFactor=2.3548200 // full width at half maximum of a gaussian is 2*sqrt(2*ln 2) sigma

// Estimates the width of the brightest band as the longest contiguous run of
// profile samples at or above BandThreshold times the profile maximum.
// A single left-to-right scan keeps the first-found longest run, so ties
// resolve deterministically. A non-positive profile maximum or an empty run
// yields an undetermined result, never a zero width.
func Estimate(profile []float32, s *measure.Settings) *measure.Result {
	res:=&measure.Result{Method: measure.MethodBand}
	if len(profile)==0 {
		res.Reason=measure.ReasonInputEmpty
		return res
	}

	max:=profile[0]
	for _,p:=range profile {
		if p>max { max=p }
	}
	if max<=0 {
		res.Reason=measure.ReasonNoSignal
		return res
	}
	threshold:=max*s.BandThreshold

	bestStart, bestLen:=0, 0
	curStart,  curLen :=0, 0
	for i,p:=range profile {
		if p>=threshold {
			if curLen==0 { curStart=i }
			curLen++
			if curLen>bestLen { bestStart, bestLen=curStart, curLen }
		} else {
			curLen=0
		}
	}
	if bestLen==0 {
		res.Reason=measure.ReasonNoSignal
		return res
	}

	res.Ok=true
	res.WidthPx=float32(bestLen)
	res.RunStart, res.RunEnd=bestStart, bestStart+bestLen

	if s.RefineBand { refine(profile, res) }
	return res
}

// Refines band center and width to sub-pixel precision by fitting a gaussian
// to the profile around the detected run. Failure to converge leaves the
// integer run result untouched.
func refine(profile []float32, res *measure.Result) {
	w:=res.RunEnd-res.RunStart
	lo:=res.RunStart-w
	if lo<0 { lo=0 }
	hi:=res.RunEnd+w
	if hi>len(profile) { hi=len(profile) }
	if hi-lo<5 { return }

	// fit against the background-subtracted neighborhood of the run
	min:=profile[lo]
	for i:=lo+1; i<hi; i++ {
		if profile[i]<min { min=profile[i] }
	}
	xs:=make([]float32, hi-lo)
	ys:=make([]float32, hi-lo)
	peak:=float32(0)
	for i:=lo; i<hi; i++ {
		xs[i-lo]=float32(i)
		ys[i-lo]=profile[i]-min
		if ys[i-lo]>peak { peak=ys[i-lo] }
	}

	sigma0:=float32(w)/fwhmFactor
	mu0   :=float32(res.RunStart)+0.5*float32(w)
	alpha0:=peak*sigma0*float32(math.Sqrt(2*math.Pi))

	alpha, mu, sigma, err:=stats.FitGaussian(xs, ys, alpha0, mu0, sigma0)
	if err!=nil { return }
	sigma=float32(math.Abs(float64(sigma))) // the objective is even in sigma
	if !(sigma>0) || !(alpha>0) || mu<float32(lo) || mu>float32(hi-1) { return }

	res.Refined=true
	res.CenterPx=mu
	res.RefinedWidthPx=sigma*fwhmFactor
}
