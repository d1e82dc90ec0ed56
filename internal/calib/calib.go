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


package calib

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"github.com/mlnoga/fringe/internal/measure"
)

// Parses a calibration point given as "x,y" in pixel coordinates
func ParsePoint(s string) (x, y float64, err error) {
	parts:=strings.Split(s, ",")
	if len(parts)!=2 {
		return 0, 0, fmt.Errorf("invalid point '%s', expecting x,y", s)
	}
	if x, err=strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err!=nil {
		return 0, 0, fmt.Errorf("invalid point '%s': %s", s, err.Error())
	}
	if y, err=strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err!=nil {
		return 0, 0, fmt.Errorf("invalid point '%s': %s", s, err.Error())
	}
	return x, y, nil
}

// Transform converts pixel distances into physical lengths. Scale is in
// millimeters per pixel, strictly positive and finite once constructed.
type Transform struct {
	Scale float64 `json:"scale"`
}

// Derives a pixel-to-length scale from two reference points in pixel
// coordinates and the known real-world distance between them in millimeters.
// Coinciding points or a non-positive length yield an undetermined reason,
// as does any input that would make the scale non-finite.
func NewTransform(x0, y0, x1, y1, knownLengthMm float64) (*Transform, measure.Reason) {
	if !(knownLengthMm>0) {
		return nil, measure.ReasonInvalidCalibrationInput
	}
	dist:=math.Hypot(x1-x0, y1-y0)
	if !(dist>0) {
		return nil, measure.ReasonInvalidCalibrationInput
	}
	scale:=knownLengthMm/dist
	if !(scale>0) || math.IsInf(scale, 0) {
		return nil, measure.ReasonInvalidCalibrationInput
	}
	return &Transform{Scale: scale}, measure.ReasonNone
}

// Converts a pixel quantity into millimeters
func (tf *Transform) ToPhysical(px float32) float64 {
	return float64(px)*tf.Scale
}

// Derives the diffracting slit width from fringe spacing via the small angle
// approximation w = lambda*D/s. Wavelength is in nanometers, screen distance
// and spacing in millimeters. The second return is false when any input is
// absent or non-positive, and the slit width is then omitted rather than zero.
func SlitWidthMm(wavelengthNm, distanceMm, spacingMm float64) (float64, bool) {
	if !(wavelengthNm>0) || !(distanceMm>0) || !(spacingMm>0) {
		return 0, false
	}
	return wavelengthNm*1e-6*distanceMm/spacingMm, true
}

// Converts the pixel measurements of res into physical units in place.
// Undetermined results are left untouched. Optics inputs of zero are treated
// as withheld and suppress the slit width output.
func (tf *Transform) Apply(res *measure.Result, wavelengthNm, distanceMm float64) {
	if !res.Ok { return }
	res.HasPhysical=true
	switch res.Method {
	case measure.MethodBand:
		res.WidthMm=tf.ToPhysical(res.WidthPx)
	default:
		res.SpacingMm=tf.ToPhysical(res.SpacingPx)
		if w, ok:=SlitWidthMm(wavelengthNm, distanceMm, res.SpacingMm); ok {
			res.HasSlit=true
			res.SlitWidthMm=w
		}
	}
}
