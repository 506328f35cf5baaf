package wavemark

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Embedder hides a bit vector in the wavelet sub-bands of a cover image.
//
// The bits are projected to a GridSize×GridSize map m = tanh(Proj·bits + ProjBias),
// spread over each sub-band as M and mixed into every band k as
//
//	band'_k = band_k + Alpha[k]·M + Beta[k]·band_k⊙M
//
// before the inverse transform.
type Embedder struct {
	Proj     *mat.Dense    // G×L, G = GridSize²
	ProjBias *mat.VecDense // G
	Alpha    [4]float64    // additive strength per band, LL LH HL HH
	Beta     [4]float64    // multiplicative strength per band

	opt     Options
	wavelet *Wavelet
}

// EmbedderGrads mirrors the learned parameters of an Embedder.
type EmbedderGrads struct {
	Proj     *mat.Dense
	ProjBias *mat.VecDense
	Alpha    [4]float64
	Beta     [4]float64
}

type embedTrace struct {
	bands  [4]*mat.Dense
	mark   *mat.VecDense
	m      *mat.VecDense
	spread *mat.Dense
}

func newEmbedder(opt Options, wv *Wavelet, rng *rand.Rand) *Embedder {
	g := opt.GridSize * opt.GridSize
	e := &Embedder{
		Proj:     glorot(g, opt.WatermarkBits, rng),
		ProjBias: mat.NewVecDense(g, nil),
		opt:      opt,
		wavelet:  wv,
	}
	for k := range e.Alpha {
		e.Alpha[k] = 0.01
	}
	return e
}

func (e *Embedder) newGrads() *EmbedderGrads {
	r, c := e.Proj.Dims()
	return &EmbedderGrads{
		Proj:     mat.NewDense(r, c, nil),
		ProjBias: mat.NewVecDense(e.ProjBias.Len(), nil),
	}
}

// Embed returns the watermarked image.
func (e *Embedder) Embed(cover *mat.Dense, mark []float64) (*mat.Dense, error) {
	img, _, err := e.forward(cover, mark)
	return img, err
}

func (e *Embedder) forward(cover *mat.Dense, mark []float64) (*mat.Dense, *embedTrace, error) {
	if len(mark) != e.opt.WatermarkBits {
		return nil, nil, fmt.Errorf("%w: watermark length %d, want %d", ErrShapeMismatch, len(mark), e.opt.WatermarkBits)
	}
	if h, w := cover.Dims(); h != e.opt.Height || w != e.opt.Width {
		return nil, nil, fmt.Errorf("%w: cover %dx%d, want %dx%d", ErrShapeMismatch, h, w, e.opt.Height, e.opt.Width)
	}
	sb, err := e.wavelet.Forward(cover)
	if err != nil {
		return nil, nil, err
	}

	tr := &embedTrace{bands: sb.Bands(), mark: mat.NewVecDense(len(mark), append([]float64(nil), mark...))}
	tr.m = tanhVec(affine(e.Proj, tr.mark, e.ProjBias))
	_, _, br, bc := e.opt.subbandSize()
	grid := mat.NewDense(e.opt.GridSize, e.opt.GridSize, tr.m.RawVector().Data)
	tr.spread = blockRepeat(grid, br, bc)

	var mixed [4]*mat.Dense
	for k, band := range tr.bands {
		var mod mat.Dense
		mod.MulElem(band, tr.spread)
		mod.Scale(e.Beta[k], &mod)
		mod.Add(&mod, band)
		var add mat.Dense
		add.Scale(e.Alpha[k], tr.spread)
		mod.Add(&mod, &add)
		mixed[k] = &mod
	}
	img, err := e.wavelet.Inverse(subbandsOf(mixed))
	if err != nil {
		return nil, nil, err
	}
	return img, tr, nil
}

// backward accumulates parameter gradients into g and returns the gradients
// with respect to the cover image and the watermark bits.
func (e *Embedder) backward(tr *embedTrace, dImg *mat.Dense, g *EmbedderGrads) (*mat.Dense, []float64, error) {
	dOut, err := e.wavelet.Forward(dImg)
	if err != nil {
		return nil, nil, err
	}
	r, c := tr.spread.Dims()
	dSpread := mat.NewDense(r, c, nil)
	var dBands [4]*mat.Dense
	for k, d := range dOut.Bands() {
		band := tr.bands[k]

		// dband = d ⊙ (1 + Beta·M)
		var db mat.Dense
		db.MulElem(d, tr.spread)
		db.Scale(e.Beta[k], &db)
		db.Add(&db, d)
		dBands[k] = &db

		g.Alpha[k] += sumElem(d, tr.spread)
		var bm mat.Dense
		bm.MulElem(band, tr.spread)
		g.Beta[k] += sumElem(d, &bm)

		// dM += d ⊙ (Alpha + Beta·band)
		var coef mat.Dense
		coef.Scale(e.Beta[k], band)
		coef.Apply(func(_, _ int, v float64) float64 { return v + e.Alpha[k] }, &coef)
		coef.MulElem(&coef, d)
		dSpread.Add(dSpread, &coef)
	}

	_, _, br, bc := e.opt.subbandSize()
	dGrid := blockSum(dSpread, br, bc)
	dz := mat.NewVecDense(tr.m.Len(), nil)
	for i := range tr.m.Len() {
		m := tr.m.AtVec(i)
		dz.SetVec(i, dGrid.At(i/e.opt.GridSize, i%e.opt.GridSize)*(1-m*m))
	}
	dMark := affineBackward(e.Proj, tr.mark, dz, g.Proj, g.ProjBias)

	dCover, err := e.wavelet.Inverse(subbandsOf(dBands))
	if err != nil {
		return nil, nil, err
	}
	return dCover, dMark.RawVector().Data, nil
}
