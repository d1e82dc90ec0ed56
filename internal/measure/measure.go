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


package measure

import (
	"encoding/json"
	"fmt"
	"math"
)

// Enumerated type for measurement strategies
type Method int
const (
	MethodBand Method = iota  // brightest band width from a thresholded run
	MethodPeaks               // mean spacing of detected intensity peaks
	MethodAutocorr            // dominant period of the edge profile autocorrelation
)

func (m Method) String() string {
	switch m {
	case MethodBand:     return "band"
	case MethodPeaks:    return "peaks"
	case MethodAutocorr: return "autocorr"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Parses a measurement strategy name as given on the command line
func ParseMethod(s string) (Method, error) {
	switch s {
	case "band":     return MethodBand, nil
	case "peaks":    return MethodPeaks, nil
	case "autocorr": return MethodAutocorr, nil
	}
	return 0, fmt.Errorf("unknown measurement strategy '%s', expecting band, peaks or autocorr", s)
}

// Enumerated type for reasons why a measurement came back undetermined.
// Undetermined outcomes are expected, recoverable and displayable. They are
// carried as results, not as errors, and never as numeric sentinel values.
type Reason int
const (
	ReasonNone Reason = iota
	ReasonInputEmpty              // zero-element image or profile
	ReasonNoSignal                // profile carries no usable intensity variation
	ReasonInsufficientPeaks       // fewer peaks or spacings than required
	ReasonSpacingInconsistent     // peak spacings vary beyond the accepted ratio
	ReasonNoPeriodicity           // autocorrelation has no positive peak in the lag window
	ReasonInvalidCalibrationInput // calibration points coincide or length not positive
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:                     return "none"
	case ReasonInputEmpty:               return "input empty"
	case ReasonNoSignal:                 return "no signal"
	case ReasonInsufficientPeaks:        return "insufficient peaks"
	case ReasonSpacingInconsistent:      return "spacing inconsistent"
	case ReasonNoPeriodicity:            return "no periodicity"
	case ReasonInvalidCalibrationInput:  return "invalid calibration input"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Settings for fringe measurements. Built once from flags or request fields
// and treated as read-only afterwards, so concurrent measurements can share them.
type Settings struct {
	PeakThreshold float32 `json:"peakThreshold"` // normalized peak acceptance threshold, clamped to [0,1] on use
	MaxStdRatio   float32 `json:"maxStdRatio"`   // max spacing stddev/mean ratio for acceptance
	MinPeaks      int     `json:"minPeaks"`      // minimum number of peaks for a spacing estimate
	MaxDimension  int     `json:"maxDimension"`  // longest image side before downscaling, 0 for unbounded
	BandThreshold float32 `json:"bandThreshold"` // band run threshold as a ratio of the profile maximum
	RefineBand    bool    `json:"refineBand"`    // gaussian sub-pixel refinement of the band
	SmoothSigma   float32 `json:"smoothSigma"`   // 1D profile smoothing sigma, 0 disables
	BlurSigma     float32 `json:"blurSigma"`     // 2D pre-blur sigma for the edge pipeline, 0 disables
	EdgeLow       float32 `json:"edgeLow"`       // lower hysteresis threshold on the [0,1] edge map
	EdgeHigh      float32 `json:"edgeHigh"`      // upper hysteresis threshold on the [0,1] edge map
	MaxUploadMB   int64   `json:"maxUploadMB"`   // upload size cap for the REST server
}

// Returns settings initialized with the documented defaults
func NewSettings() *Settings {
	return &Settings{
		PeakThreshold: 0.35,
		MaxStdRatio:   0.2,
		MinPeaks:      3,
		MaxDimension:  0,
		BandThreshold: 0.6,
		RefineBand:    false,
		SmoothSigma:   3.5,
		BlurSigma:     1.1,
		EdgeLow:       50.0/255.0,
		EdgeHigh:      150.0/255.0,
		MaxUploadMB:   10,
	}
}

// Validates the settings, rejecting non-finite and out-of-domain values.
// Out-of-range but finite peak thresholds are not an error, they are clamped on use.
func (s *Settings) Validate() error {
	for _, f:=range []struct{ name string; val float32 }{
		{"peakThreshold", s.PeakThreshold}, {"maxStdRatio", s.MaxStdRatio},
		{"bandThreshold", s.BandThreshold}, {"smoothSigma", s.SmoothSigma},
		{"blurSigma", s.BlurSigma}, {"edgeLow", s.EdgeLow}, {"edgeHigh", s.EdgeHigh},
	} {
		if math.IsNaN(float64(f.val)) || math.IsInf(float64(f.val), 0) {
			return fmt.Errorf("%s must be finite, got %v", f.name, f.val)
		}
	}
	if s.MaxStdRatio<0            { return fmt.Errorf("maxStdRatio must be >=0, got %g", s.MaxStdRatio) }
	if s.MinPeaks<0               { return fmt.Errorf("minPeaks must be >=0, got %d", s.MinPeaks) }
	if s.MaxDimension<0           { return fmt.Errorf("maxDimension must be >=0, got %d", s.MaxDimension) }
	if s.BandThreshold<=0 || s.BandThreshold>1 { return fmt.Errorf("bandThreshold must be in (0,1], got %g", s.BandThreshold) }
	if s.SmoothSigma<0            { return fmt.Errorf("smoothSigma must be >=0, got %g", s.SmoothSigma) }
	if s.BlurSigma<0              { return fmt.Errorf("blurSigma must be >=0, got %g", s.BlurSigma) }
	if s.EdgeLow<0 || s.EdgeHigh>1 || s.EdgeLow>s.EdgeHigh {
		return fmt.Errorf("edge thresholds must satisfy 0<=low<=high<=1, got %g and %g", s.EdgeLow, s.EdgeHigh)
	}
	if s.MaxUploadMB<=0           { return fmt.Errorf("maxUploadMB must be >0, got %d", s.MaxUploadMB) }
	return nil
}

// Result of a fringe measurement on a single image. Pixel quantities are
// float32 like the underlying image data, physical quantities are float64.
type Result struct {
	Method Method `json:"method"`
	Ok     bool   `json:"ok"`     // false when the measurement is undetermined
	Reason Reason `json:"reason"` // why it is undetermined, ReasonNone otherwise

	// band strategy
	WidthPx  float32 `json:"widthPx"`  // width of the brightest band in pixels
	RunStart int     `json:"runStart"` // first profile index of the band run
	RunEnd   int     `json:"runEnd"`   // one past the last profile index of the band run
	Refined       bool    `json:"refined"`       // true when the gaussian refinement converged
	CenterPx      float32 `json:"centerPx"`      // sub-pixel band center when refined
	RefinedWidthPx float32 `json:"refinedWidthPx"` // sub-pixel band FWHM when refined

	// peaks and autocorr strategies
	SpacingPx float32   `json:"spacingPx"` // mean fringe spacing in pixels
	Peaks     []int32   `json:"peaks"`     // detected peak columns, kept even when undetermined
	Spacings  []float32 `json:"spacings"`  // consecutive peak spacings in pixels

	// calibrated quantities, present only after a successful calibration
	HasPhysical bool    `json:"hasPhysical"`
	WidthMm     float64 `json:"widthMm"`
	SpacingMm   float64 `json:"spacingMm"`
	HasSlit     bool    `json:"hasSlit"`
	SlitWidthMm float64 `json:"slitWidthMm"`
}

// Returns an undetermined result for the given strategy and reason
func NewUndetermined(m Method, r Reason) *Result {
	return &Result{Method: m, Reason: r}
}

// Pretty print the measurement outcome for log output
func (r *Result) String() string {
	if !r.Ok {
		if r.Method==MethodPeaks && len(r.Peaks)>0 {
			return fmt.Sprintf("%s undetermined (%s), %d peaks", r.Method, r.Reason, len(r.Peaks))
		}
		return fmt.Sprintf("%s undetermined (%s)", r.Method, r.Reason)
	}
	switch r.Method {
	case MethodBand:
		s:=fmt.Sprintf("band width %.0f px [%d..%d)", r.WidthPx, r.RunStart, r.RunEnd)
		if r.Refined {
			s+=fmt.Sprintf(", refined center %.2f width %.2f", r.CenterPx, r.RefinedWidthPx)
		}
		if r.HasPhysical { s+=fmt.Sprintf(", %.4f mm", r.WidthMm) }
		return s
	default:
		s:=fmt.Sprintf("%s spacing %.2f px from %d peaks", r.Method, r.SpacingPx, len(r.Peaks))
		if r.Method==MethodAutocorr { s=fmt.Sprintf("%s spacing %.2f px", r.Method, r.SpacingPx) }
		if r.HasPhysical { s+=fmt.Sprintf(", %.4f mm", r.SpacingMm) }
		if r.HasSlit     { s+=fmt.Sprintf(", slit %.4f mm", r.SlitWidthMm) }
		return s
	}
}
