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

package stats

import (
	"math"

	"gonum.org/v1/gonum/optimize" // source via "go get gonum.org/v1/gonum"
)

// Calculate histogram of data between min and max into given bins
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	scale := float32(len(bins)-1) / (max - min)
	for _, d := range data {
		index := (d - min) * scale
		bins[int(index)]++
	}
}

// Fits a scaled normal density alpha/(sigma*sqrt(2*pi)) * exp(-0.5*((x-mu)/sigma)^2)
// to the given curve samples, minimizing the RMS residual with Nelder-Mead
// starting from the provided initial guesses. xs and ys must have equal length.
func FitGaussian(xs, ys []float32, alpha0, mu0, sigma0 float32) (alpha, mu, sigma float32, err error) {
	x0 := []float64{float64(alpha0), float64(mu0), float64(sigma0)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := float32(x[0]), float32(x[1]), float32(x[2])
			scaler := alpha / (sigma * float32(math.Sqrt(2*math.Pi)))
			sumSqDiff := float32(0)

			for i, y := range ys {
				xmusig := (xs[i] - mu) / sigma
				yPredict := scaler * float32(math.Exp(float64(-0.5*xmusig*xmusig)))

				diff := y - yPredict
				sumSqDiff += diff * diff
			}
			variance := sumSqDiff / float32(len(ys))
			return math.Sqrt(float64(variance))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, -1, err
	}

	return float32(result.X[0]), float32(result.X[1]), float32(result.X[2]), nil
}
