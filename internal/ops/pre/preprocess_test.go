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

package pre

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
	"github.com/mlnoga/fringe/internal/stats"
)

func testContext(s *measure.Settings) (*ops.Context, *bytes.Buffer) {
	log := &bytes.Buffer{}
	return ops.NewContext(log, s, stats.LSEstimator), log
}

func TestOpGray(t *testing.T) {
	c, log := testContext(measure.NewSettings())
	data := []float32{
		1, 0, // R plane
		0, 1, // G plane
		0.5, 0.5, // B plane
	}
	f := frame.NewFrameFromNaxisn([]int32{2, 1, 3}, data)

	res, err := NewOpGrayDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("gray error %s", err.Error())
	}
	if res.Channels() != 1 || len(res.Data) != 2 {
		t.Fatalf("got %d channels with %d samples, want mono", res.Channels(), len(res.Data))
	}
	if res.Data[0] != 0.5 || res.Data[1] != 0.5 {
		t.Errorf("got %v, want channel means [0.5 0.5]", res.Data)
	}
	if !strings.Contains(log.String(), "channel mean") {
		t.Errorf("log %q misses collapse mode", log.String())
	}
}

func TestOpGrayMonoPassthrough(t *testing.T) {
	c, _ := testContext(measure.NewSettings())
	f := frame.NewFrameFromNaxisn([]int32{4, 2}, nil)
	res, err := NewOpGrayDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("gray error %s", err.Error())
	}
	if res != f {
		t.Errorf("mono frame should pass through unchanged")
	}
}

func TestOpResize(t *testing.T) {
	s := measure.NewSettings()
	s.MaxDimension = 50
	c, log := testContext(s)

	f := frame.NewFrameFromNaxisn([]int32{100, 50}, nil)
	for i := range f.Data {
		f.Data[i] = 0.25
	}
	res, err := NewOpResizeDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("resize error %s", err.Error())
	}
	if res.Width() != 50 || res.Height() != 25 || !res.Resized {
		t.Errorf("got %dx%d resized=%v, want 50x25 resized", res.Width(), res.Height(), res.Resized)
	}
	if !strings.Contains(log.String(), "Resized") {
		t.Errorf("log %q misses resize note", log.String())
	}
}

func TestOpResizeDisabled(t *testing.T) {
	c, _ := testContext(measure.NewSettings()) // default MaxDimension 0
	f := frame.NewFrameFromNaxisn([]int32{100, 50}, nil)
	res, err := NewOpResizeDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("resize error %s", err.Error())
	}
	if res != f || res.Resized {
		t.Errorf("resize with MaxDimension 0 should pass through unchanged")
	}
}

func TestOpEdge(t *testing.T) {
	c, _ := testContext(measure.NewSettings())

	// vertical stripes, bright 4 of every 16 columns
	w, h := int32(64), int32(24)
	data := make([]float32, w*h)
	for y := int32(0); y < h; y++ {
		for x := int32(0); x < w; x++ {
			if x%16 < 4 {
				data[y*w+x] = 1
			}
		}
	}
	f := frame.NewFrameFromNaxisn([]int32{w, h}, data)

	res, err := NewOpEdgeDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("edge error %s", err.Error())
	}
	if len(res.EdgeProfile) != int(w) {
		t.Fatalf("edge profile has %d samples, want %d", len(res.EdgeProfile), w)
	}
	max := float32(0)
	for _, v := range res.EdgeProfile {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		t.Errorf("edge profile is empty for a striped frame")
	}
}

func TestOpEdgeNeedsGray(t *testing.T) {
	c, _ := testContext(measure.NewSettings())
	f := frame.NewFrameFromNaxisn([]int32{8, 8, 3}, nil)
	if _, err := NewOpEdgeDefault().Apply(f, c); err == nil {
		t.Errorf("expected error for color input")
	}
}
