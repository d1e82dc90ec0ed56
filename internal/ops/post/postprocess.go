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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
)

type OpOverlay struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpOverlayDefault() }) } // register the operator for JSON decoding

func NewOpOverlayDefault() *OpOverlay { return NewOpOverlay() }

func NewOpOverlay() *OpOverlay {
	op := &OpOverlay{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "overlay"}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpOverlay) UnmarshalJSON(data []byte) error {
	type defaults OpOverlay
	def := defaults(*NewOpOverlayDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpOverlay(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Renders measurement markers into a color copy of the frame and passes
// the copy downstream. A frame without usable measurements yields a plain copy
func (op *OpOverlay) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	res := f.RenderOverlay()

	what := "no markers"
	if m := f.Measure; m != nil {
		switch {
		case m.Method == measure.MethodBand && m.Ok:
			what = "band boundaries"
		case len(m.Peaks) > 0:
			what = fmt.Sprintf("%d peak markers", len(m.Peaks))
		case m.Ok && m.SpacingPx > 0:
			what = "spacing grid"
		}
	}
	fmt.Fprintf(c.Log, "%d: Rendered %s overlay into %s image\n", f.ID, what, res.DimensionsToString())
	return res, nil
}

type OpExportCSV struct {
	ops.OpUnaryBase
	FileName string     `json:"fileName"`
	mutex    sync.Mutex `json:"-"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpExportCSVDefault() }) } // register the operator for JSON decoding

func NewOpExportCSVDefault() *OpExportCSV { return NewOpExportCSV("results.csv") }

func NewOpExportCSV(fileName string) *OpExportCSV {
	op := &OpExportCSV{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "exportCSV"}},
		FileName:    fileName,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpExportCSV) UnmarshalJSON(data []byte) error {
	type defaults OpExportCSV
	def := defaults(*NewOpExportCSVDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	// *op = OpExportCSV(def)   // triggers linter error "mutex passed by value", hence:
	op.OpUnaryBase = def.OpUnaryBase
	op.FileName = def.FileName
	op.mutex = sync.Mutex{}

	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Appends one result row per frame to the export file. The header is written
// with the first frame, the file is flushed and closed once the number of
// frames given by Context.ResultsTotal has been processed
func (op *OpExportCSV) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if op.FileName == "" {
		fmt.Fprintf(c.Log, "%d: exportCSV empty fileName\n", f.ID)
		return f, nil
	}

	op.mutex.Lock()         // lock so a single thread is active
	defer op.mutex.Unlock() // always release lock on exit

	if c.ResultsProcessed == 0 {
		err = op.writeHeader(c)
		if err != nil {
			return nil, err
		}
	}
	op.writeRow(f, c)
	c.ResultsProcessed++
	if c.ResultsProcessed == c.ResultsTotal {
		op.writeFooter(c)
	}

	return f, nil
}

func (op *OpExportCSV) writeHeader(c *ops.Context) (err error) {
	fmt.Fprintf(c.Log, "Writing results header to file %s ...\n", op.FileName)
	c.ResultsFile, err = os.Create(op.FileName)
	if err != nil {
		return fmt.Errorf("error creating file %s: %s", op.FileName, err.Error())
	}
	c.ResultsWriter = bufio.NewWriter(c.ResultsFile)

	c.ResultsWriter.WriteString("image,spacing_px,spacing_mm,slit_width_mm\n")
	return nil
}

func (op *OpExportCSV) writeRow(f *frame.Frame, c *ops.Context) {
	fmt.Fprintf(c.Log, "%d: writing results to file %s ...\n", f.ID, op.FileName)

	name := filepath.Base(f.FileName)
	if f.FileName == "" {
		name = fmt.Sprintf("%d", f.ID)
	}
	spacingPx, spacingMm, slitMm := "", "", ""
	if m := f.Measure; m != nil && m.Ok && m.SpacingPx > 0 {
		spacingPx = fmt.Sprintf("%.2f", m.SpacingPx)
		if m.HasPhysical {
			spacingMm = fmt.Sprintf("%.6f", m.SpacingMm)
		}
		if m.HasSlit {
			slitMm = fmt.Sprintf("%.6f", m.SlitWidthMm)
		}
	}
	fmt.Fprintf(c.ResultsWriter, "%s,%s,%s,%s\n", name, spacingPx, spacingMm, slitMm)
}

func (op *OpExportCSV) writeFooter(c *ops.Context) {
	fmt.Fprintf(c.Log, "Closing results file %s ...\n", op.FileName)
	c.ResultsWriter.Flush()
	c.ResultsWriter = nil
	c.ResultsFile.Close()
	c.ResultsFile = nil
}
