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

package post

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
	"github.com/mlnoga/fringe/internal/stats"
)

func testContext() (*ops.Context, *bytes.Buffer) {
	log := &bytes.Buffer{}
	return ops.NewContext(log, measure.NewSettings(), stats.LSEstimator), log
}

func TestOpOverlayPeaks(t *testing.T) {
	c, log := testContext()

	f := frame.NewFrameFromNaxisn([]int32{64, 16}, nil)
	for i := range f.Data {
		f.Data[i] = 0.5
	}
	f.Measure = measure.NewUndetermined(measure.MethodPeaks, measure.ReasonNone)
	f.Measure.Ok = true
	f.Measure.SpacingPx = 10
	f.Measure.Peaks = []int32{10, 20, 30}

	res, err := NewOpOverlayDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("overlay error %s", err.Error())
	}
	if res.Channels() != 3 {
		t.Fatalf("overlay has %d channels, want color copy", res.Channels())
	}
	if res.Measure != f.Measure {
		t.Errorf("overlay copy must carry the measurement for export")
	}
	if !strings.Contains(log.String(), "3 peak markers") {
		t.Errorf("log %q misses peak marker note", log.String())
	}
}

func TestOpOverlayNoMeasurement(t *testing.T) {
	c, log := testContext()
	f := frame.NewFrameFromNaxisn([]int32{16, 8}, nil)
	res, err := NewOpOverlayDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("overlay error %s", err.Error())
	}
	if res.Channels() != 3 {
		t.Errorf("plain copy should still be a color frame")
	}
	if !strings.Contains(log.String(), "no markers") {
		t.Errorf("log %q misses the no marker note", log.String())
	}
}

func TestOpExportCSV(t *testing.T) {
	c, _ := testContext()
	c.ResultsTotal = 2
	fileName := filepath.Join(t.TempDir(), "results.csv")
	op := NewOpExportCSV(fileName)

	good := frame.NewFrameFromNaxisn([]int32{8, 8}, nil)
	good.FileName = "shots/a.png"
	good.Measure = measure.NewUndetermined(measure.MethodAutocorr, measure.ReasonNone)
	good.Measure.Ok = true
	good.Measure.SpacingPx = 12.5
	good.Measure.HasPhysical = true
	good.Measure.SpacingMm = 6.25
	good.Measure.HasSlit = true
	good.Measure.SlitWidthMm = 0.104

	bad := frame.NewFrameFromNaxisn([]int32{8, 8}, nil)
	bad.ID, bad.FileName = 1, "shots/b.png"
	bad.Measure = measure.NewUndetermined(measure.MethodAutocorr, measure.ReasonNoPeriodicity)

	for _, f := range []*frame.Frame{good, bad} {
		if _, err := op.Apply(f, c); err != nil {
			t.Fatalf("export error %s", err.Error())
		}
	}
	if c.ResultsWriter != nil || c.ResultsFile != nil {
		t.Fatalf("export did not close the results file after the last frame")
	}

	bs, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatalf("reading results: %s", err.Error())
	}
	lines := strings.Split(strings.TrimSpace(string(bs)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and 2 rows: %q", len(lines), string(bs))
	}
	if lines[0] != "image,spacing_px,spacing_mm,slit_width_mm" {
		t.Errorf("header %q unexpected", lines[0])
	}
	if lines[1] != "a.png,12.50,6.250000,0.104000" {
		t.Errorf("row %q unexpected", lines[1])
	}
	if lines[2] != "b.png,,," {
		t.Errorf("undetermined row %q should have empty value fields", lines[2])
	}
}
