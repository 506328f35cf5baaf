package wavemark

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Model holds the two learned stages of the pipeline.
type Model struct {
	Embedder  *Embedder
	Extractor *Extractor

	opt     Options
	wavelet *Wavelet
}

// NewModel validates opt and initialises fresh parameters from rng.
func NewModel(opt Options, rng *rand.Rand) (*Model, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	wv, err := NewWavelet(opt.Wavelet)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Model{
		Embedder:  newEmbedder(opt, wv, rng),
		Extractor: newExtractor(opt, wv, rng),
		opt:       opt,
		wavelet:   wv,
	}, nil
}

func (m *Model) Options() Options { return m.opt }

func (m *Model) Wavelet() *Wavelet { return m.wavelet }

// Grads holds one gradient slot per learned parameter of a Model.
type Grads struct {
	Embedder  *EmbedderGrads
	Extractor *ExtractorGrads
}

func (m *Model) NewGrads() *Grads {
	return &Grads{Embedder: m.Embedder.newGrads(), Extractor: m.Extractor.newGrads()}
}

// params returns views of every learned tensor in a fixed order.
// Writes through the views update the model.
func (m *Model) params() [][]float64 {
	e, x := m.Embedder, m.Extractor
	return [][]float64{
		e.Proj.RawMatrix().Data,
		e.ProjBias.RawVector().Data,
		e.Alpha[:],
		e.Beta[:],
		x.W1.RawMatrix().Data,
		x.B1.RawVector().Data,
		x.W2.RawMatrix().Data,
		x.B2.RawVector().Data,
	}
}

// flat mirrors Model.params.
func (g *Grads) flat() [][]float64 {
	e, x := g.Embedder, g.Extractor
	return [][]float64{
		e.Proj.RawMatrix().Data,
		e.ProjBias.RawVector().Data,
		e.Alpha[:],
		e.Beta[:],
		x.W1.RawMatrix().Data,
		x.B1.RawVector().Data,
		x.W2.RawMatrix().Data,
		x.B2.RawVector().Data,
	}
}

// Add accumulates o into g.
func (g *Grads) Add(o *Grads) {
	dst, src := g.flat(), o.flat()
	for i := range dst {
		floats.Add(dst[i], src[i])
	}
}

// Scale multiplies every gradient by s.
func (g *Grads) Scale(s float64) {
	for _, v := range g.flat() {
		floats.Scale(s, v)
	}
}

// Norm is the L2 norm over all gradients.
func (g *Grads) Norm() float64 {
	sum := 0.0
	for _, v := range g.flat() {
		sum += floats.Dot(v, v)
	}
	return math.Sqrt(sum)
}
