package wavemark

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Subbands is one level of a 2-D wavelet decomposition. Each band has half the
// rows and half the columns of the decomposed image.
type Subbands struct {
	LL *mat.Dense // approximation
	LH *mat.Dense // horizontal detail
	HL *mat.Dense // vertical detail
	HH *mat.Dense // diagonal detail
}

// Bands returns the sub-bands in LL, LH, HL, HH order.
func (s Subbands) Bands() [4]*mat.Dense {
	return [4]*mat.Dense{s.LL, s.LH, s.HL, s.HH}
}

func subbandsOf(b [4]*mat.Dense) Subbands {
	return Subbands{LL: b[0], LH: b[1], HL: b[2], HH: b[3]}
}

// Wavelet is a single-level orthonormal 2-D wavelet pair.
//
// The Haar pair is orthonormal, so the adjoint of Forward is Inverse and the
// adjoint of Inverse is Forward. Gradients flow through the same two calls.
type Wavelet struct {
	name string
}

func NewWavelet(name string) (*Wavelet, error) {
	switch strings.ToLower(name) {
	case "haar", "db1":
		return &Wavelet{name: "haar"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWavelet, name)
	}
}

func (wv *Wavelet) Name() string { return wv.name }

// Forward splits img into its four sub-bands.
func (wv *Wavelet) Forward(img *mat.Dense) (Subbands, error) {
	if img == nil || img.IsEmpty() {
		return Subbands{}, fmt.Errorf("%w: empty image", ErrShapeMismatch)
	}
	h, w := img.Dims()
	if h%2 != 0 || w%2 != 0 {
		return Subbands{}, fmt.Errorf("%w: %dx%d", ErrOddDimensions, h, w)
	}
	hh, hw := h/2, w/2
	var bands [4]*mat.Dense
	var out [4][]float64
	for k := range bands {
		bands[k] = mat.NewDense(hh, hw, nil)
		out[k] = bands[k].RawMatrix().Data
	}
	raw := img.RawMatrix()
	src, stride := raw.Data, raw.Stride
	for y := range hh {
		top := 2 * y * stride
		bottom := top + stride
		for x := range hw {
			a := src[top+2*x]
			b := src[top+2*x+1]
			c := src[bottom+2*x]
			d := src[bottom+2*x+1]
			i := y*hw + x
			out[0][i] = (a + b + c + d) * 0.5
			out[1][i] = (a + b - c - d) * 0.5
			out[2][i] = (a - b + c - d) * 0.5
			out[3][i] = (a - b - c + d) * 0.5
		}
	}
	return subbandsOf(bands), nil
}

// Inverse reassembles an image from its sub-bands.
func (wv *Wavelet) Inverse(s Subbands) (*mat.Dense, error) {
	bands := s.Bands()
	for _, b := range bands {
		if b == nil || b.IsEmpty() {
			return nil, fmt.Errorf("%w: missing sub-band", ErrShapeMismatch)
		}
	}
	hh, hw := bands[0].Dims()
	for _, b := range bands[1:] {
		if r, c := b.Dims(); r != hh || c != hw {
			return nil, fmt.Errorf("%w: sub-band %dx%d, want %dx%d", ErrShapeMismatch, r, c, hh, hw)
		}
	}
	w := 2 * hw
	img := mat.NewDense(2*hh, w, nil)
	dst := img.RawMatrix().Data
	var in [4]mat.RawMatrix
	for k, b := range bands {
		in[k] = b.RawMatrix()
	}
	for y := range hh {
		top := 2 * y * w
		bottom := top + w
		for x := range hw {
			ll := in[0].Data[y*in[0].Stride+x]
			lh := in[1].Data[y*in[1].Stride+x]
			hl := in[2].Data[y*in[2].Stride+x]
			dd := in[3].Data[y*in[3].Stride+x]
			dst[top+2*x] = (ll + lh + hl + dd) * 0.5
			dst[top+2*x+1] = (ll + lh - hl - dd) * 0.5
			dst[bottom+2*x] = (ll - lh + hl - dd) * 0.5
			dst[bottom+2*x+1] = (ll - lh - hl + dd) * 0.5
		}
	}
	return img, nil
}
