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

package fit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/fringe/internal/autocorr"
	"github.com/mlnoga/fringe/internal/band"
	"github.com/mlnoga/fringe/internal/calib"
	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
	"github.com/mlnoga/fringe/internal/peaks"
	"github.com/mlnoga/fringe/internal/prof"
)

type OpProfile struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpProfileDefault() }) } // register the operator for JSON decoding

func NewOpProfileDefault() *OpProfile { return NewOpProfile() }

func NewOpProfile() *OpProfile {
	op := &OpProfile{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "profile"}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpProfile) UnmarshalJSON(data []byte) error {
	type defaults OpProfile
	def := defaults(*NewOpProfileDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpProfile(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Extracts the column intensity profile of the frame, collapsing color
// channels to their per-pixel mean, and smooths it with Settings.SmoothSigma
func (op *OpProfile) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	s := c.Settings
	if s == nil {
		s = measure.NewSettings()
	}
	f.Profile = prof.Smooth(prof.ColumnMeans(f.Data, f.Width(), f.Channels()), s.SmoothSigma)
	fmt.Fprintf(c.Log, "%d: Extracted %d sample column profile with smoothing sigma %.1f\n",
		f.ID, len(f.Profile), s.SmoothSigma)
	return f, nil
}

type OpBandWidth struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBandWidthDefault() }) } // register the operator for JSON decoding

func NewOpBandWidthDefault() *OpBandWidth { return NewOpBandWidth() }

func NewOpBandWidth() *OpBandWidth {
	op := &OpBandWidth{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "bandWidth"}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBandWidth) UnmarshalJSON(data []byte) error {
	type defaults OpBandWidth
	def := defaults(*NewOpBandWidthDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpBandWidth(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Measures the width of the brightest band in the column profile
func (op *OpBandWidth) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	s := c.Settings
	if s == nil {
		s = measure.NewSettings()
	}
	f.Measure = band.Estimate(f.Profile, s)
	fmt.Fprintf(c.Log, "%d: %s\n", f.ID, f.Measure)
	return f, nil
}

type OpPeakSpacing struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPeakSpacingDefault() }) } // register the operator for JSON decoding

func NewOpPeakSpacingDefault() *OpPeakSpacing { return NewOpPeakSpacing() }

func NewOpPeakSpacing() *OpPeakSpacing {
	op := &OpPeakSpacing{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "peakSpacing"}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpPeakSpacing) UnmarshalJSON(data []byte) error {
	type defaults OpPeakSpacing
	def := defaults(*NewOpPeakSpacingDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpPeakSpacing(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Measures the mean fringe spacing from intensity peaks in the column profile
func (op *OpPeakSpacing) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	s := c.Settings
	if s == nil {
		s = measure.NewSettings()
	}
	f.Measure = peaks.Estimate(f.Profile, s)
	fmt.Fprintf(c.Log, "%d: %s\n", f.ID, f.Measure)
	return f, nil
}

type OpAutocorrSpacing struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpAutocorrSpacingDefault() }) } // register the operator for JSON decoding

func NewOpAutocorrSpacingDefault() *OpAutocorrSpacing { return NewOpAutocorrSpacing() }

func NewOpAutocorrSpacing() *OpAutocorrSpacing {
	op := &OpAutocorrSpacing{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "autocorrSpacing"}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpAutocorrSpacing) UnmarshalJSON(data []byte) error {
	type defaults OpAutocorrSpacing
	def := defaults(*NewOpAutocorrSpacingDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpAutocorrSpacing(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Measures the dominant fringe spacing from the autocorrelation of the
// edge magnitude profile attached by the edge operator
func (op *OpAutocorrSpacing) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	f.Measure = autocorr.Estimate(f.EdgeProfile)
	fmt.Fprintf(c.Log, "%d: %s\n", f.ID, f.Measure)
	return f, nil
}

type OpCalibrate struct {
	ops.OpUnaryBase
	X0           float64 `json:"x0"`
	Y0           float64 `json:"y0"`
	X1           float64 `json:"x1"`
	Y1           float64 `json:"y1"`
	LengthMm     float64 `json:"lengthMm"`
	WavelengthNm float64 `json:"wavelengthNm"`
	DistanceMm   float64 `json:"distanceMm"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCalibrateDefault() }) } // register the operator for JSON decoding

func NewOpCalibrateDefault() *OpCalibrate { return NewOpCalibrate(0, 0, 0, 0, 0, 0, 0) }

func NewOpCalibrate(x0, y0, x1, y1, lengthMm, wavelengthNm, distanceMm float64) *OpCalibrate {
	op := &OpCalibrate{
		OpUnaryBase:  ops.OpUnaryBase{OpBase: ops.OpBase{Type: "calibrate"}},
		X0:           x0,
		Y0:           y0,
		X1:           x1,
		Y1:           y1,
		LengthMm:     lengthMm,
		WavelengthNm: wavelengthNm,
		DistanceMm:   distanceMm,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCalibrate) UnmarshalJSON(data []byte) error {
	type defaults OpCalibrate
	def := defaults(*NewOpCalibrateDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpCalibrate(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Converts pixel measurements into physical units using two reference points
// a known distance apart, and derives the slit width when optics are given.
// A zero known length leaves the frame untouched
func (op *OpCalibrate) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if op.LengthMm == 0 {
		return f, nil
	}
	tf, reason := calib.NewTransform(op.X0, op.Y0, op.X1, op.Y1, op.LengthMm)
	if reason != measure.ReasonNone {
		return nil, errors.New(fmt.Sprintf("%d: %s: points (%.1f,%.1f)-(%.1f,%.1f) length %.2f mm",
			f.ID, reason, op.X0, op.Y0, op.X1, op.Y1, op.LengthMm))
	}
	if f.Measure == nil {
		return f, nil
	}
	tf.Apply(f.Measure, op.WavelengthNm, op.DistanceMm)
	fmt.Fprintf(c.Log, "%d: Calibrated with %.4f mm/px: %s\n", f.ID, tf.Scale, f.Measure)
	return f, nil
}
