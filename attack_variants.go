package wavemark

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// maskBackward differentiates out = x⊙mask (plus anything constant in x).
func maskBackward(masks []*mat.Dense) Backward {
	return func(grad []*mat.Dense) []*mat.Dense {
		dx := make([]*mat.Dense, len(grad))
		for i, g := range grad {
			var d mat.Dense
			d.MulElem(g, masks[i])
			dx[i] = &d
		}
		return dx
	}
}

func passThrough(grad []*mat.Dense) []*mat.Dense {
	dx := make([]*mat.Dense, len(grad))
	for i, g := range grad {
		dx[i] = mat.DenseCopyOf(g)
	}
	return dx
}

// ============ IDENTITY ============

func identityAttack(batch []*mat.Dense, _ *Options, _ *rand.Rand) ([]*mat.Dense, Backward, error) {
	return batch, passThrough, nil
}

// ============ GAUSSIAN NOISE ============

func gaussianNoiseAttack(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error) {
	sigma := uniform(rng, opt.Attack.NoiseStdMin, opt.Attack.NoiseStdMax)
	out := make([]*mat.Dense, len(batch))
	masks := make([]*mat.Dense, len(batch))
	for i, img := range batch {
		h, w := img.Dims()
		res := mat.NewDense(h, w, nil)
		mask := mat.NewDense(h, w, nil)
		dst := res.RawMatrix().Data
		keep := mask.RawMatrix().Data
		for y := range h {
			for x := range w {
				v := img.At(y, x) + sigma*rng.NormFloat64()
				off := y*w + x
				switch {
				case v < 0:
					dst[off] = 0
				case v > 1:
					dst[off] = 1
				default:
					dst[off] = v
					keep[off] = 1
				}
			}
		}
		out[i], masks[i] = res, mask
	}
	return out, maskBackward(masks), nil
}

// ============ JPEG ============

// jpegAttack round-trips every image through the JPEG codec at a fixed
// quality. The codec has no derivative, so the gradient passes straight through.
func jpegAttack(batch []*mat.Dense, opt *Options, _ *rand.Rand) ([]*mat.Dense, Backward, error) {
	out := make([]*mat.Dense, len(batch))
	for i, img := range batch {
		res, err := jpegRoundTrip(img, opt.Attack.JPEGQuality)
		if err != nil {
			return nil, nil, err
		}
		out[i] = res
	}
	return out, passThrough, nil
}

func jpegRoundTrip(img *mat.Dense, quality int) (*mat.Dense, error) {
	h, w := img.Dims()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := min(1, max(0, img.At(y, x)))
			gray.Pix[y*gray.Stride+x] = uint8(math.Round(v * 255))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	out := mat.NewDense(h, w, nil)
	dst := out.RawMatrix().Data
	b := decoded.Bounds()
	if g, ok := decoded.(*image.Gray); ok {
		for y := range h {
			row := g.Pix[y*g.Stride : y*g.Stride+w]
			for x, p := range row {
				dst[y*w+x] = float64(p) / 255
			}
		}
		return out, nil
	}
	for y := range h {
		for x := range w {
			r, _, _, _ := decoded.At(b.Min.X+x, b.Min.Y+y).RGBA()
			dst[y*w+x] = float64(r>>8) / 255
		}
	}
	return out, nil
}

// ============ CROPPING ============

// croppingAttack blanks a border of ratio×size on every edge: the kept centre
// is padded back with zeros to the original geometry.
func croppingAttack(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error) {
	ratio := uniform(rng, opt.Attack.CropMin, opt.Attack.CropMax)
	h, w := batch[0].Dims()
	box := CropBox(h, w, ratio)

	mask := mat.NewDense(h, w, nil)
	inner := mask.Slice(box.Min.Y, box.Max.Y, box.Min.X, box.Max.X).(*mat.Dense)
	ih, iw := inner.Dims()
	for y := range ih {
		for x := range iw {
			inner.Set(y, x, 1)
		}
	}

	out := make([]*mat.Dense, len(batch))
	masks := make([]*mat.Dense, len(batch))
	for i, img := range batch {
		padded := mat.NewDense(h, w, nil)
		padded.Slice(box.Min.Y, box.Max.Y, box.Min.X, box.Max.X).(*mat.Dense).
			Copy(img.Slice(box.Min.Y, box.Max.Y, box.Min.X, box.Max.X))
		out[i] = resizeWithCropOrPad(padded, h, w)
		masks[i] = mask
	}
	return out, maskBackward(masks), nil
}

// ============ SCALING ============

// scalingAttack is a bilinear down/up round trip. Both resizes are linear, so
// the whole attack is out = Ay·X·Axᵀ and its adjoint is Ayᵀ·G·Ax.
func scalingAttack(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error) {
	factor := uniform(rng, opt.Attack.ScaleMin, opt.Attack.ScaleMax)
	h, w := batch[0].Dims()
	nh, nw := ScaledSize(h, w, factor)

	var ay, ax mat.Dense
	ay.Mul(bilinearWeights(h, nh), bilinearWeights(nh, h))
	ax.Mul(bilinearWeights(w, nw), bilinearWeights(nw, w))

	out := make([]*mat.Dense, len(batch))
	for i, img := range batch {
		var tmp, res mat.Dense
		tmp.Mul(&ay, img)
		res.Mul(&tmp, ax.T())
		out[i] = &res
	}
	return out, func(grad []*mat.Dense) []*mat.Dense {
		dx := make([]*mat.Dense, len(grad))
		for i, g := range grad {
			var tmp, d mat.Dense
			tmp.Mul(ay.T(), g)
			d.Mul(&tmp, &ax)
			dx[i] = &d
		}
		return dx
	}, nil
}

// ============ SALT & PEPPER ============

func saltPepperAttack(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error) {
	p := uniform(rng, opt.Attack.SaltPepperMin, opt.Attack.SaltPepperMax)
	out := make([]*mat.Dense, len(batch))
	masks := make([]*mat.Dense, len(batch))
	for i, img := range batch {
		h, w := img.Dims()
		res := mat.NewDense(h, w, nil)
		mask := mat.NewDense(h, w, nil)
		dst := res.RawMatrix().Data
		keep := mask.RawMatrix().Data
		for y := range h {
			for x := range w {
				off := y*w + x
				if rng.Float64() < p {
					if rng.Float64() < 0.5 {
						dst[off] = 1
					}
					continue
				}
				dst[off] = img.At(y, x)
				keep[off] = 1
			}
		}
		out[i], masks[i] = res, mask
	}
	return out, maskBackward(masks), nil
}

// ============ DROPOUT ============

func dropoutAttack(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error) {
	p := uniform(rng, opt.Attack.DropoutMin, opt.Attack.DropoutMax)
	out := make([]*mat.Dense, len(batch))
	masks := make([]*mat.Dense, len(batch))
	for i, img := range batch {
		h, w := img.Dims()
		mask := mat.NewDense(h, w, nil)
		keep := mask.RawMatrix().Data
		for j := range keep {
			if rng.Float64() >= p {
				keep[j] = 1
			}
		}
		var res mat.Dense
		res.MulElem(img, mask)
		out[i], masks[i] = &res, mask
	}
	return out, maskBackward(masks), nil
}
