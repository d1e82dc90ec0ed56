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

package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/stats"
)

func testContext() *Context {
	return NewContext(&bytes.Buffer{}, measure.NewSettings(), stats.LSEstimator)
}

func constantPromise(id int) Promise {
	return func() (*frame.Frame, error) {
		f := frame.NewFrameFromNaxisn([]int32{8, 4}, nil)
		f.ID = id
		return f, nil
	}
}

func failingPromise(msg string) Promise {
	return func() (*frame.Frame, error) { return nil, errors.New(msg) }
}

func TestMaterializeAll(t *testing.T) {
	ins := []Promise{constantPromise(0), constantPromise(1), constantPromise(2)}
	outs, err := MaterializeAll(ins, 2, false)
	if err != nil {
		t.Fatalf("materialize error %s", err.Error())
	}
	if len(outs) != 3 {
		t.Fatalf("got %d frames, want 3", len(outs))
	}
	for i, f := range outs {
		if f.ID != i {
			t.Errorf("frame %d has id %d, promise order not kept", i, f.ID)
		}
	}
}

func TestMaterializeAllError(t *testing.T) {
	ins := []Promise{constantPromise(0), failingPromise("boom"), constantPromise(2)}
	outs, err := MaterializeAll(ins, 4, false)
	if err == nil {
		t.Fatalf("expected error from failing promise")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not mention failing promise", err.Error())
	}
	if len(outs) != 2 {
		t.Errorf("got %d frames, want the 2 successful ones", len(outs))
	}
}

func TestMaterializeAllForget(t *testing.T) {
	ins := []Promise{constantPromise(0), constantPromise(1)}
	outs, err := MaterializeAll(ins, 1, true)
	if err != nil {
		t.Fatalf("materialize error %s", err.Error())
	}
	if len(outs) != 0 {
		t.Errorf("forget mode returned %d frames, want 0", len(outs))
	}
}

func TestRemoveNils(t *testing.T) {
	a, b := frame.NewFrame(), frame.NewFrame()
	frames := []*frame.Frame{nil, a, nil, b, nil}
	res := RemoveNils(frames)
	if len(res) != 2 || res[0] != a || res[1] != b {
		t.Errorf("got %v, want [a b]", res)
	}
}

func TestIsPathAllowed(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"image.png", true},
		{"sub/dir/image.png", true},
		{"/etc/passwd", false},
		{"../escape.png", false},
		{"sub/../../escape.png", false},
	}
	for _, tc := range tests {
		if got := isPathAllowed(tc.path); got != tc.want {
			t.Errorf("isPathAllowed(%q)=%v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestOpLoadRejectsUnsafePaths(t *testing.T) {
	c := testContext()
	for _, path := range []string{"/abs/image.png", "../image.png"} {
		op := NewOpLoad(0, path)
		if _, err := op.MakePromises(nil, c); err == nil {
			t.Errorf("load of %q did not fail", path)
		}
	}
}

func TestOpForEach(t *testing.T) {
	c := testContext()
	op := NewOpForEach(NewOpSequence())
	ins := []Promise{constantPromise(0), constantPromise(1), constantPromise(2)}
	outs, err := op.MakePromises(ins, c)
	if err != nil {
		t.Fatalf("forEach error %s", err.Error())
	}
	if len(outs) != len(ins) {
		t.Fatalf("got %d promises, want %d", len(outs), len(ins))
	}
}

func TestOpSaveStemExpansion(t *testing.T) {
	dir := t.TempDir()
	op := NewOpSave(filepath.Join(dir, "%s_out.jpg"))
	c := testContext()

	f := frame.NewFrameFromNaxisn([]int32{8, 8}, nil)
	for i := range f.Data {
		f.Data[i] = 0.5
	}
	f.ID, f.FileName = 7, "shots/fringes01.png"

	if _, err := op.Apply(f, c); err != nil {
		t.Fatalf("save error %s", err.Error())
	}
	if _, err := os.Stat(filepath.Join(dir, "fringes01_out.jpg")); err != nil {
		t.Errorf("expected output file missing: %s", err.Error())
	}
}

func TestOpSaveUnknownSuffix(t *testing.T) {
	op := NewOpSave(filepath.Join(t.TempDir(), "out.tiff"))
	c := testContext()
	f := frame.NewFrameFromNaxisn([]int32{4, 4}, nil)
	if _, err := op.Apply(f, c); err == nil {
		t.Errorf("expected unknown suffix error")
	}
}

func TestOpSequenceJSONRoundTrip(t *testing.T) {
	raw := `{"type":"seq","active":true,"steps":[
		{"type":"load","id":3,"fileName":"a.png"},
		{"type":"save","active":true,"filePattern":"out_%d.jpg"}]}`

	seq := NewOpSequenceDefault()
	if err := json.Unmarshal([]byte(raw), seq); err != nil {
		t.Fatalf("unmarshal error %s", err.Error())
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(seq.Steps))
	}
	load, ok := seq.Steps[0].(*OpLoad)
	if !ok || load.FileName != "a.png" || load.ID != 3 {
		t.Errorf("load step decoded as %+v", seq.Steps[0])
	}
	save, ok := seq.Steps[1].(*OpSave)
	if !ok || save.FilePattern != "out_%d.jpg" || !save.Active {
		t.Errorf("save step decoded as %+v", seq.Steps[1])
	}

	bs, err := json.Marshal(seq)
	if err != nil {
		t.Fatalf("marshal error %s", err.Error())
	}
	for _, want := range []string{`"type":"seq"`, `"fileName":"a.png"`, `"filePattern":"out_%d.jpg"`} {
		if !strings.Contains(string(bs), want) {
			t.Errorf("marshaled %s misses %s", string(bs), want)
		}
	}
}

func TestOpSequenceUnknownType(t *testing.T) {
	raw := `{"type":"seq","steps":[{"type":"warpDrive"}]}`
	seq := NewOpSequenceDefault()
	err := json.Unmarshal([]byte(raw), seq)
	if err == nil || !strings.Contains(err.Error(), "Unknown operator type") {
		t.Errorf("got error %v, want unknown operator type", err)
	}
}
