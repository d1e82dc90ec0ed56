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


package peaks

import (
	"gonum.org/v1/gonum/stat"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/prof"
)

const minPeakGap=2 // accepted peaks must be more than this many pixels apart

// Estimates fringe spacing from local maxima of the normalized profile.
// Peaks above the threshold are collected with greedy de-duplication, then
// the mean of consecutive peak distances is accepted when enough peaks exist
// and their spread stays within MaxStdRatio. The peak list is returned even
// when the spacing itself is undetermined, so overlays can still show them.
func Estimate(profile []float32, s *measure.Settings) *measure.Result {
	res:=&measure.Result{Method: measure.MethodPeaks}
	if len(profile)==0 {
		res.Reason=measure.ReasonInputEmpty
		return res
	}

	norm, ok:=prof.Normalize(profile)
	if !ok {
		res.Reason=measure.ReasonNoSignal
		return res
	}

	tau:=s.PeakThreshold
	if tau<0 {
		tau=0
	} else if tau>1 {
		tau=1
	}
	res.Peaks=findPeaks(norm, tau)

	spacings:=make([]float64, 0, len(res.Peaks))
	for i:=1; i<len(res.Peaks); i++ {
		d:=res.Peaks[i]-res.Peaks[i-1]
		if d<=1 { continue } // false-peak duplicate artifact, not a real spacing
		spacings=append(spacings, float64(d))
	}
	res.Spacings=make([]float32, len(spacings))
	for i,sp:=range spacings { res.Spacings[i]=float32(sp) }

	if len(spacings)<2 || len(res.Peaks)<s.MinPeaks {
		res.Reason=measure.ReasonInsufficientPeaks
		return res
	}

	mean:=stat.Mean(spacings, nil)
	sd  :=stat.PopStdDev(spacings, nil)
	if mean<=0 || sd/mean>float64(s.MaxStdRatio) {
		res.Reason=measure.ReasonSpacingInconsistent
		return res
	}

	res.Ok=true
	res.SpacingPx=float32(mean)
	return res
}

// Returns interior local maxima at or above threshold tau, in increasing
// order. Once a peak is accepted, candidates within minPeakGap pixels of it
// are suppressed.
func findPeaks(norm []float32, tau float32) []int32 {
	peaks:=[]int32{}
	for i:=1; i<len(norm)-1; i++ {
		v:=norm[i]
		if v<tau || v<norm[i-1] || v<norm[i+1] { continue }
		if l:=len(peaks); l>0 && int32(i)-peaks[l-1]<=minPeakGap { continue }
		peaks=append(peaks, int32(i))
	}
	return peaks
}
