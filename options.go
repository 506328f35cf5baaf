package wavemark

import (
	"fmt"
	"image"
	"math"
)

type Options struct {
	// Cover image geometry. Both must be even for the single-level Haar split.
	Height int
	Width  int
	// Length of the watermark bit vector. Must be a perfect square so the bits
	// can be laid out on a square grid for display.
	WatermarkBits int
	// Side of the learned watermark map injected into every sub-band.
	// Must divide Height/2 and Width/2; each cell is spread over a block.
	// Larger values carry more detail but survive scaling and cropping worse.
	GridSize int
	// Width of the extractor's hidden layer.
	// Ideal start: around WatermarkBits.
	HiddenUnits int
	// Wavelet basis. Only "haar" is implemented.
	Wavelet string
	// Largest accepted attack identifier. 6 excludes dropout, 7 includes it.
	// 1 is rejected: the combined attack needs ids 2..MaxAttackID to draw from.
	MaxAttackID AttackKind
	// One random draw per attack call for the whole batch (true), or an
	// independent draw per sample (false).
	SharedDraws bool
	Attack      AttackOptions
}

// AttackOptions holds the sampling ranges of the stochastic attacks.
type AttackOptions struct {
	NoiseStdMin float64
	NoiseStdMax float64
	// Fixed quality of the JPEG round trip, 1..100.
	JPEGQuality int
	// Fraction removed from each edge before zero padding.
	CropMin float64
	CropMax float64
	// Down-scale factor of the bilinear round trip.
	ScaleMin float64
	ScaleMax float64
	// Per-pixel corruption probability.
	SaltPepperMin float64
	SaltPepperMax float64
	DropoutMin    float64
	DropoutMax    float64
}

func DefaultAttackOptions() AttackOptions {
	return AttackOptions{
		NoiseStdMin:   0.01,
		NoiseStdMax:   0.1,
		JPEGQuality:   50,
		CropMin:       0.05,
		CropMax:       0.15,
		ScaleMin:      0.5,
		ScaleMax:      0.75,
		SaltPepperMin: 0.01,
		SaltPepperMax: 0.05,
		DropoutMin:    0.1,
		DropoutMax:    0.3,
	}
}

func DefaultOptions() Options {
	return Options{
		Height:        256,
		Width:         256,
		WatermarkBits: 256,
		GridSize:      32,
		HiddenUnits:   256,
		Wavelet:       "haar",
		MaxAttackID:   AttackDropout,
		SharedDraws:   true,
		Attack:        DefaultAttackOptions(),
	}
}

// OptionsFromSize adapts the defaults to a cover size, picking the largest
// grid side not above 32 that tiles both sub-band axes.
func OptionsFromSize(size image.Point) Options {
	opt := DefaultOptions()
	if size.X <= 0 || size.Y <= 0 || size.X%2 != 0 || size.Y%2 != 0 {
		return opt
	}
	opt.Height = size.Y
	opt.Width = size.X
	g := gcd(size.Y/2, size.X/2)
	for d := min(32, g); d >= 1; d-- {
		if g%d == 0 {
			opt.GridSize = d
			break
		}
	}
	return opt
}

func (o Options) Validate() error {
	if o.Height <= 0 || o.Width <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrShapeMismatch, o.Height, o.Width)
	}
	if o.Height%2 != 0 || o.Width%2 != 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrOddDimensions, o.Height, o.Width)
	}
	if o.WatermarkBits <= 0 {
		return fmt.Errorf("%w: watermark length %d", ErrConfiguration, o.WatermarkBits)
	}
	if side := int(math.Round(math.Sqrt(float64(o.WatermarkBits)))); side*side != o.WatermarkBits {
		return fmt.Errorf("%w: watermark length %d is not a perfect square", ErrConfiguration, o.WatermarkBits)
	}
	if o.GridSize <= 0 || (o.Height/2)%o.GridSize != 0 || (o.Width/2)%o.GridSize != 0 {
		return fmt.Errorf("%w: grid size %d does not tile %dx%d sub-bands",
			ErrConfiguration, o.GridSize, o.Height/2, o.Width/2)
	}
	if o.HiddenUnits <= 0 {
		return fmt.Errorf("%w: hidden units %d", ErrConfiguration, o.HiddenUnits)
	}
	if _, err := NewWavelet(o.Wavelet); err != nil {
		return err
	}
	if o.MaxAttackID < AttackNone || o.MaxAttackID > AttackDropout || o.MaxAttackID == AttackCombined {
		return fmt.Errorf("%w: max attack id %d", ErrUnknownAttack, o.MaxAttackID)
	}
	return o.Attack.validate()
}

func (a AttackOptions) validate() error {
	ranges := []struct {
		name     string
		lo, hi   float64
		min, max float64
	}{
		{"noise std", a.NoiseStdMin, a.NoiseStdMax, 0, 1},
		{"crop", a.CropMin, a.CropMax, 0, 0.5},
		{"scale", a.ScaleMin, a.ScaleMax, 0, 1},
		{"salt and pepper", a.SaltPepperMin, a.SaltPepperMax, 0, 1},
		{"dropout", a.DropoutMin, a.DropoutMax, 0, 1},
	}
	for _, r := range ranges {
		if r.lo > r.hi || r.lo < r.min || r.hi > r.max {
			return fmt.Errorf("%w: %s range [%g, %g]", ErrConfiguration, r.name, r.lo, r.hi)
		}
	}
	if a.ScaleMin <= 0 {
		return fmt.Errorf("%w: scale factor must be positive", ErrConfiguration)
	}
	if a.JPEGQuality < 1 || a.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d", ErrConfiguration, a.JPEGQuality)
	}
	return nil
}

// subbandSize returns the sub-band geometry and the block a grid cell covers.
func (o Options) subbandSize() (rows, cols, blockRows, blockCols int) {
	rows, cols = o.Height/2, o.Width/2
	return rows, cols, rows / o.GridSize, cols / o.GridSize
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
