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
	"math"
	"testing"
	"github.com/mlnoga/fringe/internal/measure"
)

// unitPeaks builds a dark profile of length n with unit impulses at the given indices
func unitPeaks(n int, indices ...int) []float32 {
	profile:=make([]float32, n)
	for _,i:=range indices { profile[i]=1.0 }
	return profile
}

func TestEstimateEvenlySpaced(t *testing.T) {
	profile:=unitPeaks(60, 5, 15, 25, 35, 45)
	res:=Estimate(profile, measure.NewSettings())
	if !res.Ok {
		t.Fatalf("not ok, reason %s", res.Reason)
	}
	if len(res.Peaks)!=5 {
		t.Errorf("got %d peaks; want 5", len(res.Peaks))
	}
	if math.Abs(float64(res.SpacingPx)-10)>1 {
		t.Errorf("spacing=%.2f; want 10 within 1", res.SpacingPx)
	}
}

func TestEstimateIrregular(t *testing.T) {
	profile:=unitPeaks(60, 5, 15, 40)
	res:=Estimate(profile, measure.NewSettings())
	if res.Ok {
		t.Errorf("spacing %.2f accepted for spacings 10 and 25; want undetermined", res.SpacingPx)
	}
	if res.Reason!=measure.ReasonSpacingInconsistent {
		t.Errorf("reason=%s; want spacing inconsistent", res.Reason)
	}
	if len(res.Peaks)!=3 {
		t.Errorf("got %d peaks; want raw peak list of 3 despite rejection", len(res.Peaks))
	}
}

func TestEstimateTooFewPeaks(t *testing.T) {
	profile:=unitPeaks(60, 20, 30)
	res:=Estimate(profile, measure.NewSettings())
	if res.Ok || res.Reason!=measure.ReasonInsufficientPeaks {
		t.Errorf("got ok=%v reason=%s; want undetermined insufficient peaks", res.Ok, res.Reason)
	}
	if len(res.Peaks)!=2 {
		t.Errorf("got %d peaks; want 2", len(res.Peaks))
	}
}

func TestEstimateDeduplication(t *testing.T) {
	// the peak at 12 is within the minimum gap of the one at 10 and must be suppressed
	profile:=unitPeaks(60, 10, 12, 20, 30, 40)
	res:=Estimate(profile, measure.NewSettings())
	if !res.Ok {
		t.Fatalf("not ok, reason %s", res.Reason)
	}
	want:=[]int32{10, 20, 30, 40}
	if len(res.Peaks)!=len(want) {
		t.Fatalf("got peaks %v; want %v", res.Peaks, want)
	}
	for i,p:=range res.Peaks {
		if p!=want[i] {
			t.Errorf("peak[%d]=%d; want %d", i, p, want[i])
		}
	}
}

func TestEstimateThresholdClamped(t *testing.T) {
	profile:=unitPeaks(60, 5, 15, 25, 35, 45)
	s:=measure.NewSettings()
	s.PeakThreshold=3.0
	res:=Estimate(profile, s)
	if !res.Ok || len(res.Peaks)!=5 {
		t.Errorf("got ok=%v with %d peaks; want threshold clamped to 1 and all 5 unit peaks", res.Ok, len(res.Peaks))
	}
}

func TestEstimateEmpty(t *testing.T) {
	res:=Estimate(nil, measure.NewSettings())
	if res.Ok || res.Reason!=measure.ReasonInputEmpty {
		t.Errorf("got ok=%v reason=%s; want undetermined input empty", res.Ok, res.Reason)
	}
}

func TestEstimateFlat(t *testing.T) {
	res:=Estimate(make([]float32, 100), measure.NewSettings())
	if res.Ok || res.Reason!=measure.ReasonNoSignal {
		t.Errorf("got ok=%v reason=%s; want undetermined no signal", res.Ok, res.Reason)
	}
}

func TestEstimateIdempotent(t *testing.T) {
	profile:=unitPeaks(60, 5, 15, 25, 35, 45)
	s:=measure.NewSettings()
	res1:=Estimate(profile, s)
	res2:=Estimate(profile, s)
	if res1.SpacingPx!=res2.SpacingPx || len(res1.Peaks)!=len(res2.Peaks) {
		t.Errorf("results differ across identical calls: %.4f vs %.4f", res1.SpacingPx, res2.SpacingPx)
	}
}
