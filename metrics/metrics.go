// Package metrics scores watermarking quality. Nothing here takes part in
// training; the numbers are for reports only.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PSNR returns the peak signal-to-noise ratio in dB for images in [0,1].
// Identical images have no noise and yield +Inf.
func PSNR(original, distorted *mat.Dense) float64 {
	return psnrFromMSE(MSE(original, distorted))
}

// PSNRBatch pools the squared error over every pixel of the batch.
func PSNRBatch(original, distorted []*mat.Dense) float64 {
	sum, n := 0.0, 0
	for i := range original {
		r, c := original[i].Dims()
		sum += MSE(original[i], distorted[i]) * float64(r*c)
		n += r * c
	}
	if n == 0 {
		return math.Inf(1)
	}
	return psnrFromMSE(sum / float64(n))
}

func psnrFromMSE(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(1/math.Sqrt(mse))
}

func MSE(a, b *mat.Dense) float64 {
	var d mat.Dense
	d.Sub(a, b)
	d.MulElem(&d, &d)
	r, c := d.Dims()
	return mat.Sum(&d) / float64(r*c)
}

const (
	ssimWindow = 11
	ssimSigma  = 1.5
	ssimK1     = 0.01
	ssimK2     = 0.03
)

// SSIM is the mean structural similarity over all 11×11 Gaussian windows
// (σ = 1.5) that fit inside the image, with a dynamic range of 1. Images
// smaller than one window fall back to a single global window.
func SSIM(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	if r < ssimWindow || c < ssimWindow {
		return ssimStats(values(a), values(b), nil)
	}

	weights := gaussianWindow()
	x := make([]float64, ssimWindow*ssimWindow)
	y := make([]float64, ssimWindow*ssimWindow)
	sum, n := 0.0, 0
	for top := 0; top+ssimWindow <= r; top++ {
		for left := 0; left+ssimWindow <= c; left++ {
			for dy := range ssimWindow {
				for dx := range ssimWindow {
					x[dy*ssimWindow+dx] = a.At(top+dy, left+dx)
					y[dy*ssimWindow+dx] = b.At(top+dy, left+dx)
				}
			}
			sum += ssimStats(x, y, weights)
			n++
		}
	}
	return sum / float64(n)
}

// ssimStats evaluates SSIM from weighted (biased) moments.
func ssimStats(x, y, weights []float64) float64 {
	c1 := ssimK1 * ssimK1
	c2 := ssimK2 * ssimK2

	muX := stat.Mean(x, weights)
	muY := stat.Mean(y, weights)
	xx := make([]float64, len(x))
	yy := make([]float64, len(x))
	xy := make([]float64, len(x))
	for i := range x {
		xx[i] = x[i] * x[i]
		yy[i] = y[i] * y[i]
		xy[i] = x[i] * y[i]
	}
	sigmaX := stat.Mean(xx, weights) - muX*muX
	sigmaY := stat.Mean(yy, weights) - muY*muY
	sigmaXY := stat.Mean(xy, weights) - muX*muY

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den
}

func gaussianWindow() []float64 {
	w := make([]float64, ssimWindow*ssimWindow)
	half := float64(ssimWindow-1) / 2
	for y := range ssimWindow {
		for x := range ssimWindow {
			dy, dx := float64(y)-half, float64(x)-half
			w[y*ssimWindow+x] = math.Exp(-(dx*dx + dy*dy) / (2 * ssimSigma * ssimSigma))
		}
	}
	return w
}

// values copies a matrix row by row.
func values(m *mat.Dense) []float64 {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for y := range r {
		data = append(data, m.RawRowView(y)...)
	}
	return data
}

// SSIMBatch averages SSIM over a batch.
func SSIMBatch(original, distorted []*mat.Dense) float64 {
	if len(original) == 0 {
		return 1
	}
	sum := 0.0
	for i := range original {
		sum += SSIM(original[i], distorted[i])
	}
	return sum / float64(len(original))
}

// BER returns the bit error rate in percent after binarising extracted at
// threshold (values above it count as 1).
func BER(original, extracted []float64, threshold float64) float64 {
	if len(original) == 0 {
		return 0
	}
	errs := 0.0
	for i, want := range original {
		got := 0.0
		if extracted[i] > threshold {
			got = 1
		}
		errs += math.Abs(want - got)
	}
	return errs / float64(len(original)) * 100
}

// BERBatch pools bit errors over a batch.
func BERBatch(original, extracted [][]float64, threshold float64) float64 {
	sum, n := 0.0, 0
	for i := range original {
		sum += BER(original[i], extracted[i], threshold) * float64(len(original[i]))
		n += len(original[i])
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
