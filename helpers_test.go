package wavemark

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// tinyOptions is an 8×8 setup small enough for finite differences.
func tinyOptions() Options {
	opt := DefaultOptions()
	opt.Height, opt.Width = 8, 8
	opt.WatermarkBits = 4
	opt.GridSize = 2
	opt.HiddenUnits = 3
	return opt
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func randomImage(rng *rand.Rand, h, w int) *mat.Dense {
	data := make([]float64, h*w)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(h, w, data)
}

func constantImage(h, w int, v float64) *mat.Dense {
	m := mat.NewDense(h, w, nil)
	for y := range h {
		for x := range w {
			m.Set(y, x, v)
		}
	}
	return m
}

func dot(a, b *mat.Dense) float64 { return sumElem(a, b) }

func dotVec(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// numericGrad is the central difference of f with respect to *p.
func numericGrad(p *float64, f func() float64) float64 {
	const h = 1e-6
	orig := *p
	*p = orig + h
	up := f()
	*p = orig - h
	down := f()
	*p = orig
	return (up - down) / (2 * h)
}

func newTinyPipeline(t *testing.T, opt Options, seed uint64) *Pipeline {
	t.Helper()
	rng := newRand(seed)
	model, err := NewModel(opt, rng)
	require.NoError(t, err)
	attacker, err := NewAttacker(opt, rng)
	require.NoError(t, err)
	p, err := NewPipeline(model, attacker)
	require.NoError(t, err)
	return p
}
