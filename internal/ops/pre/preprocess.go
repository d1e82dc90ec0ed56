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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/fringe/internal/edge"
	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
	"github.com/mlnoga/fringe/internal/prof"
)

type OpGray struct {
	ops.OpUnaryBase
	Luminance bool `json:"luminance"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpGrayDefault() }) } // register the operator for JSON decoding

func NewOpGrayDefault() *OpGray { return NewOpGray(false) }

func NewOpGray(luminance bool) *OpGray {
	op := &OpGray{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "gray"}},
		Luminance:   luminance,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpGray) UnmarshalJSON(data []byte) error {
	type defaults OpGray
	def := defaults(*NewOpGrayDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpGray(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpGray) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if f.Channels() == 1 {
		return f, nil
	}
	mode := "channel mean"
	if op.Luminance {
		mode = "rec. 709 luminance"
	}
	f = f.ToGray(op.Luminance)
	fmt.Fprintf(c.Log, "%d: Collapsed to grayscale via %s, new size %s\n", f.ID, mode, f.DimensionsToString())
	return f, nil
}

type OpResize struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpResizeDefault() }) } // register the operator for JSON decoding

func NewOpResizeDefault() *OpResize { return NewOpResize() }

func NewOpResize() *OpResize {
	op := &OpResize{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "resize"}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpResize) UnmarshalJSON(data []byte) error {
	type defaults OpResize
	def := defaults(*NewOpResizeDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpResize(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Downscales the frame so its longest side honors Settings.MaxDimension
func (op *OpResize) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	s := c.Settings
	if s == nil || s.MaxDimension <= 0 {
		return f, nil
	}
	before := f.DimensionsToString()
	f = f.Resize(s.MaxDimension)
	if f.Resized {
		fmt.Fprintf(c.Log, "%d: Resized %s image to %s to honor maximum dimension %d\n",
			f.ID, before, f.DimensionsToString(), s.MaxDimension)
	}
	return f, nil
}

type OpEdge struct {
	ops.OpUnaryBase
	Save *ops.OpSave `json:"save"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpEdgeDefault() }) } // register the operator for JSON decoding

func NewOpEdgeDefault() *OpEdge { return NewOpEdge("") }

func NewOpEdge(savePattern string) *OpEdge {
	op := &OpEdge{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "edge"}},
		Save:        ops.NewOpSave(savePattern),
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpEdge) UnmarshalJSON(data []byte) error {
	type defaults OpEdge
	def := defaults(*NewOpEdgeDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpEdge(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Computes the edge magnitude map of a grayscale frame and attaches the
// column-summed edge profile to it. The map itself can be saved as a
// diagnostic image via the embedded save operator.
func (op *OpEdge) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if f.Channels() != 1 {
		return nil, errors.New(fmt.Sprintf("%d: edge detection needs a grayscale frame, have %d channels", f.ID, f.Channels()))
	}
	s := c.Settings
	if s == nil {
		s = measure.NewSettings()
	}

	edges := edge.Detect(f.Data, f.Width(), s)
	f.EdgeProfile = prof.ColumnSums(edges, f.Width())

	active := 0
	for _, e := range edges {
		if e > 0 {
			active++
		}
	}
	fmt.Fprintf(c.Log, "%d: Edge map has %d active pixels (%.2f%%) after hysteresis [%.3f...%.3f]\n",
		f.ID, active, 100.0*float32(active)/float32(len(edges)), s.EdgeLow, s.EdgeHigh)

	if op.Save != nil && op.Save.FilePattern != "" {
		edgeFrame := frame.NewFrameFromNaxisn(f.Naxisn[:2], edges)
		edgeFrame.ID, edgeFrame.FileName = f.ID, f.FileName
		promise := func() (f *frame.Frame, err error) { return edgeFrame, nil }
		promises, err := op.Save.MakePromises([]ops.Promise{promise}, c)
		if err != nil {
			return nil, err
		}
		_, err = promises[0]()
		if err != nil {
			return nil, err
		}
	}

	return f, nil
}
