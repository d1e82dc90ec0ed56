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


package autocorr

import (
	"math/cmplx"
	"gonum.org/v1/gonum/dsp/fourier"
	"github.com/mlnoga/fringe/internal/measure"
)

const minProfileLen=50 // shorter edge profiles carry too few periods to correlate

// Estimates fringe spacing as the dominant period of an edge-magnitude
// profile. The mean-removed profile is autocorrelated and the spacing is the
// lag of maximum correlation within a bounded window, which excludes both the
// zero-lag spike and implausibly small or large periods. Ties resolve to the
// lowest lag. A non-positive maximum correlation yields an undetermined result.
func Estimate(profile []float32) *measure.Result {
	res:=&measure.Result{Method: measure.MethodAutocorr}
	if len(profile)==0 {
		res.Reason=measure.ReasonInputEmpty
		return res
	}
	n:=len(profile)
	if n<minProfileLen {
		res.Reason=measure.ReasonNoSignal
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

	sum:=0.0
	for _,p:=range profile { sum+=float64(p) }
	mean:=sum/float64(n)

	centered:=make([]float64, n)
	allZero:=true
	for i,p:=range profile {
		v:=float64(p)-mean
		centered[i]=v
		if v!=0 { allZero=false }
	}
	if allZero {
		res.Reason=measure.ReasonNoSignal
		return res
	}

	ac:=autocorrelate(centered)
	ac[0]=0 // suppress the zero-lag self-correlation spike

	lo:=n/100
	if lo<5 { lo=5 }
	hi:=n/2
	if hi>n-1 { hi=n-1 }

	bestLag, bestVal:=-1, 0.0
	for lag:=lo; lag<=hi; lag++ {
		if bestLag<0 || ac[lag]>bestVal {
			bestLag, bestVal=lag, ac[lag]
		}
	}
	if bestLag<0 || bestVal<=0 {
		res.Reason=measure.ReasonNoPeriodicity
		return res
	}

	res.Ok=true
	res.SpacingPx=float32(bestLag)
	return res
}

// Computes the linear autocorrelation of x via the Wiener-Khinchin theorem.
// x is zero-padded to the next power of two at least twice its length, so the
// circular correlation of the padded signal equals the linear correlation of
// the original. Result is truncated to len(x).
func autocorrelate(x []float64) []float64 {
	n:=len(x)
	m:=nextPow2(2*n)
	padded:=make([]float64, m)
	copy(padded, x)

	fft:=fourier.NewFFT(m)
	coeffs:=fft.Coefficients(nil, padded)
	for i,c:=range coeffs {
		coeffs[i]=c*cmplx.Conj(c)
	}
	seq:=fft.Sequence(nil, coeffs)

	res:=make([]float64, n)
	for i:=range res {
		res[i]=seq[i]/float64(m) // gonum transforms are unnormalized
	}
	return res
}

func nextPow2(n int) int {
	m:=1
	for m<n { m<<=1 }
	return m
}
