package wavemark

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Extractor recovers bit probabilities from a possibly attacked image.
//
// Each sub-band is averaged down to the GridSize×GridSize layout used by the
// embedder; the four maps feed a tanh hidden layer and a sigmoid output with
// one unit per watermark bit.
type Extractor struct {
	W1 *mat.Dense    // Hd×4G
	B1 *mat.VecDense // Hd
	W2 *mat.Dense    // L×Hd
	B2 *mat.VecDense // L

	opt     Options
	wavelet *Wavelet
}

// ExtractorGrads mirrors the learned parameters of an Extractor.
type ExtractorGrads struct {
	W1 *mat.Dense
	B1 *mat.VecDense
	W2 *mat.Dense
	B2 *mat.VecDense
}

type extractTrace struct {
	features *mat.VecDense
	hidden   *mat.VecDense
	probs    *mat.VecDense
}

func newExtractor(opt Options, wv *Wavelet, rng *rand.Rand) *Extractor {
	features := 4 * opt.GridSize * opt.GridSize
	return &Extractor{
		W1:      glorot(opt.HiddenUnits, features, rng),
		B1:      mat.NewVecDense(opt.HiddenUnits, nil),
		W2:      glorot(opt.WatermarkBits, opt.HiddenUnits, rng),
		B2:      mat.NewVecDense(opt.WatermarkBits, nil),
		opt:     opt,
		wavelet: wv,
	}
}

func (x *Extractor) newGrads() *ExtractorGrads {
	r1, c1 := x.W1.Dims()
	r2, c2 := x.W2.Dims()
	return &ExtractorGrads{
		W1: mat.NewDense(r1, c1, nil),
		B1: mat.NewVecDense(r1, nil),
		W2: mat.NewDense(r2, c2, nil),
		B2: mat.NewVecDense(r2, nil),
	}
}

// Extract returns P(bit=1) for every watermark bit.
func (x *Extractor) Extract(img *mat.Dense) ([]float64, error) {
	tr, err := x.forward(img)
	if err != nil {
		return nil, err
	}
	return tr.probs.RawVector().Data, nil
}

func (x *Extractor) forward(img *mat.Dense) (*extractTrace, error) {
	if h, w := img.Dims(); h != x.opt.Height || w != x.opt.Width {
		return nil, fmt.Errorf("%w: image %dx%d, want %dx%d", ErrShapeMismatch, h, w, x.opt.Height, x.opt.Width)
	}
	sb, err := x.wavelet.Forward(img)
	if err != nil {
		return nil, err
	}
	_, _, br, bc := x.opt.subbandSize()
	g := x.opt.GridSize * x.opt.GridSize
	f := make([]float64, 4*g)
	for k, band := range sb.Bands() {
		flatten(f[k*g:(k+1)*g], blockMean(band, br, bc))
	}
	tr := &extractTrace{features: mat.NewVecDense(len(f), f)}
	tr.hidden = tanhVec(affine(x.W1, tr.features, x.B1))
	tr.probs = sigmoidVec(affine(x.W2, tr.hidden, x.B2))
	return tr, nil
}

// backward accumulates parameter gradients into g and returns dL/dimg for
// the loss gradient dProbs with respect to the output probabilities.
func (x *Extractor) backward(tr *extractTrace, dProbs []float64, g *ExtractorGrads) (*mat.Dense, error) {
	if len(dProbs) != tr.probs.Len() {
		return nil, fmt.Errorf("%w: gradient length %d, want %d", ErrShapeMismatch, len(dProbs), tr.probs.Len())
	}
	da2 := mat.NewVecDense(len(dProbs), nil)
	for i, d := range dProbs {
		p := tr.probs.AtVec(i)
		da2.SetVec(i, d*p*(1-p))
	}
	dh := affineBackward(x.W2, tr.hidden, da2, g.W2, g.B2)

	da1 := mat.NewVecDense(dh.Len(), nil)
	for i := range dh.Len() {
		h := tr.hidden.AtVec(i)
		da1.SetVec(i, dh.AtVec(i)*(1-h*h))
	}
	df := affineBackward(x.W1, tr.features, da1, g.W1, g.B1)

	_, _, br, bc := x.opt.subbandSize()
	gs := x.opt.GridSize
	scale := 1 / float64(br*bc)
	var dBands [4]*mat.Dense
	for k := range dBands {
		grid := mat.NewDense(gs, gs, nil)
		for i := range gs * gs {
			grid.Set(i/gs, i%gs, df.AtVec(k*gs*gs+i)*scale)
		}
		dBands[k] = blockRepeat(grid, br, bc)
	}
	return x.wavelet.Inverse(subbandsOf(dBands))
}
