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
	"math"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/fringe/internal/measure"
)

// The frequency-domain autocorrelation must match a brute-force lag correlation
func TestAutocorrelateMatchesBruteForce(t *testing.T) {
	n:=73
	rng:=fastrand.RNG{}
	x:=make([]float64, n)
	for i:=range x {
		x[i]=float64(rng.Uint32n(1000))/1000.0-0.5
	}

	got:=autocorrelate(x)

	for k:=0; k<n; k++ {
		want:=0.0
		for i:=0; i+k<n; i++ {
			want+=x[i]*x[i+k]
		}
		if math.Abs(got[k]-want)>1e-8 {
			t.Errorf("lag %d: fft %.12f brute force %.12f", k, got[k], want)
		}
	}
}

func TestEstimateSquareWave(t *testing.T) {
	n, period:=400, 16
	profile:=make([]float32, n)
	for i:=range profile {
		if (i/(period/2))%2==0 { profile[i]=1.0 }
	}

	res:=Estimate(profile)
	if !res.Ok {
		t.Fatalf("not ok, reason %s", res.Reason)
	}
	if math.Abs(float64(res.SpacingPx)-float64(period))>1 {
		t.Errorf("spacing=%.0f; want %d within 1", res.SpacingPx, period)
	}
}

func TestEstimateSine(t *testing.T) {
	n, period:=300, 20
	profile:=make([]float32, n)
	for i:=range profile {
		profile[i]=float32(0.5+0.5*math.Sin(2*math.Pi*float64(i)/float64(period)))
	}

	res:=Estimate(profile)
	if !res.Ok {
		t.Fatalf("not ok, reason %s", res.Reason)
	}
	if math.Abs(float64(res.SpacingPx)-float64(period))>1 {
		t.Errorf("spacing=%.0f; want %d within 1", res.SpacingPx, period)
	}
}

func TestEstimateEmpty(t *testing.T) {
	res:=Estimate(nil)
	if res.Ok || res.Reason!=measure.ReasonInputEmpty {
		t.Errorf("got ok=%v reason=%s; want undetermined input empty", res.Ok, res.Reason)
	}
}

func TestEstimateTooShort(t *testing.T) {
	profile:=make([]float32, 40)
	for i:=range profile { profile[i]=1.0 }
	res:=Estimate(profile)
	if res.Ok || res.Reason!=measure.ReasonNoSignal {
		t.Errorf("got ok=%v reason=%s; want undetermined no signal", res.Ok, res.Reason)
	}
}

func TestEstimateConstant(t *testing.T) {
	profile:=make([]float32, 100)
	for i:=range profile { profile[i]=0.7 }
	res:=Estimate(profile)
	if res.Ok || res.Reason!=measure.ReasonNoSignal {
		t.Errorf("got ok=%v reason=%s; want undetermined no signal for zero-contrast profile", res.Ok, res.Reason)
	}
}

func TestEstimateDark(t *testing.T) {
	res:=Estimate(make([]float32, 100))
	if res.Ok || res.Reason!=measure.ReasonNoSignal {
		t.Errorf("got ok=%v reason=%s; want undetermined no signal", res.Ok, res.Reason)
	}
}
