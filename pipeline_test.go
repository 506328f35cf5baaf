package wavemark

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPipelineRun(t *testing.T) {
	opt := DefaultOptions()
	opt.HiddenUnits = 32
	p := newTinyPipeline(t, opt, 40)
	rng := newRand(41)
	cover := randomImage(rng, 256, 256)
	mark := RandomWatermark(rng, 256)

	for kind := AttackNone; kind <= opt.MaxAttackID; kind++ {
		watermarked, recovered, err := p.Run(cover, mark, kind)
		require.NoError(t, err, "%s", kind)
		r, c := watermarked.Dims()
		require.Equal(t, 256, r)
		require.Equal(t, 256, c)
		require.Len(t, recovered, 256)
		for _, v := range recovered {
			require.True(t, v > 0 && v < 1)
		}
	}
}

func TestPipelineForwardMixedKinds(t *testing.T) {
	opt := tinyOptions()
	opt.Height, opt.Width = 32, 32
	p := newTinyPipeline(t, opt, 42)
	p.SetWorkers(2)
	rng := newRand(43)

	n := 6
	covers := make([]*mat.Dense, n)
	marks := make([][]float64, n)
	for i := range n {
		covers[i] = randomImage(rng, 32, 32)
		marks[i] = RandomWatermark(rng, opt.WatermarkBits)
	}
	kinds := []AttackKind{AttackDropout, AttackNone, AttackCropping, AttackNone, AttackDropout, AttackCombined}

	tr, err := p.Forward(covers, marks, kinds)
	require.NoError(t, err)
	require.Equal(t, kinds, tr.Kinds)
	require.Len(t, tr.groups, 4)
	for i, k := range kinds {
		if k == AttackNone {
			require.True(t, mat.Equal(tr.Watermarked[i], tr.Attacked[i]))
		}
		require.Len(t, tr.Recovered[i], opt.WatermarkBits)
	}

	// Embedding does not depend on the attack or on other samples.
	for i := range n {
		single, err := p.model.Embedder.Embed(covers[i], marks[i])
		require.NoError(t, err)
		require.True(t, mat.Equal(single, tr.Watermarked[i]))
	}
}

func TestPipelineValidation(t *testing.T) {
	opt := tinyOptions()
	p := newTinyPipeline(t, opt, 44)
	rng := newRand(45)
	cover := randomImage(rng, 8, 8)
	mark := []float64{1, 0, 1, 0}

	cases := map[string]struct {
		covers []*mat.Dense
		marks  [][]float64
		kinds  []AttackKind
		want   error
	}{
		"empty":         {nil, nil, nil, ErrShapeMismatch},
		"count":         {[]*mat.Dense{cover, cover}, [][]float64{mark}, []AttackKind{0, 0}, ErrShapeMismatch},
		"cover size":    {[]*mat.Dense{randomImage(rng, 8, 6)}, [][]float64{mark}, []AttackKind{0}, ErrShapeMismatch},
		"nil cover":     {[]*mat.Dense{nil}, [][]float64{mark}, []AttackKind{0}, ErrShapeMismatch},
		"mark length":   {[]*mat.Dense{cover}, [][]float64{{1, 0}}, []AttackKind{0}, ErrShapeMismatch},
		"attack range":  {[]*mat.Dense{cover, cover}, [][]float64{mark, mark}, []AttackKind{0, 8}, ErrUnknownAttack},
		"negative kind": {[]*mat.Dense{cover}, [][]float64{mark}, []AttackKind{-1}, ErrUnknownAttack},
	}
	for name, tc := range cases {
		tr, err := p.Forward(tc.covers, tc.marks, tc.kinds)
		require.Nil(t, tr, name)
		require.ErrorIs(t, err, tc.want, name)
		require.ErrorIs(t, err, ErrConfiguration, name)
	}
}

func TestNewPipelineShapeMismatch(t *testing.T) {
	opt := tinyOptions()
	model, err := NewModel(opt, newRand(46))
	require.NoError(t, err)
	other := opt
	other.Height, other.Width = 16, 16
	attacker, err := NewAttacker(other, newRand(47))
	require.NoError(t, err)

	_, err = NewPipeline(model, attacker)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestModelValidatesOptions(t *testing.T) {
	opt := tinyOptions()
	opt.Height = 9
	_, err := NewModel(opt, nil)
	require.ErrorIs(t, err, ErrOddDimensions)
	_, err = NewAttacker(opt, nil)
	require.ErrorIs(t, err, ErrOddDimensions)
}
