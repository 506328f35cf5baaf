package wavemark

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestWaveletRoundTrip(t *testing.T) {
	wv, err := NewWavelet("haar")
	require.NoError(t, err)
	rng := newRand(1)

	for _, size := range [][2]int{{2, 2}, {8, 8}, {16, 12}, {256, 256}} {
		img := randomImage(rng, size[0], size[1])
		sb, err := wv.Forward(img)
		require.NoError(t, err)
		for _, b := range sb.Bands() {
			r, c := b.Dims()
			require.Equal(t, size[0]/2, r)
			require.Equal(t, size[1]/2, c)
		}
		back, err := wv.Inverse(sb)
		require.NoError(t, err)
		require.True(t, mat.EqualApprox(img, back, 1e-12), "size %v", size)
	}
}

func TestWaveletConstantImage(t *testing.T) {
	wv, _ := NewWavelet("haar")
	sb, err := wv.Forward(constantImage(4, 6, 0.25))
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(sb.LL, constantImage(2, 3, 0.5), 1e-15))
	for _, b := range []*mat.Dense{sb.LH, sb.HL, sb.HH} {
		require.Zero(t, mat.Norm(b, 1))
	}
}

func TestWaveletAdjoint(t *testing.T) {
	wv, _ := NewWavelet("haar")
	rng := newRand(2)
	x := randomImage(rng, 8, 10)
	var y [4]*mat.Dense
	for k := range y {
		y[k] = randomImage(rng, 4, 5)
	}

	fx, err := wv.Forward(x)
	require.NoError(t, err)
	lhs := 0.0
	for k, b := range fx.Bands() {
		lhs += dot(b, y[k])
	}
	iy, err := wv.Inverse(subbandsOf(y))
	require.NoError(t, err)
	require.InDelta(t, lhs, dot(x, iy), 1e-12)
}

func TestWaveletErrors(t *testing.T) {
	wv, _ := NewWavelet("haar")

	_, err := wv.Forward(mat.NewDense(7, 8, nil))
	require.ErrorIs(t, err, ErrOddDimensions)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = wv.Forward(mat.NewDense(8, 5, nil))
	require.ErrorIs(t, err, ErrOddDimensions)

	_, err = wv.Inverse(Subbands{
		LL: mat.NewDense(2, 2, nil),
		LH: mat.NewDense(2, 2, nil),
		HL: mat.NewDense(2, 3, nil),
		HH: mat.NewDense(2, 2, nil),
	})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = wv.Inverse(Subbands{LL: mat.NewDense(2, 2, nil)})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNewWavelet(t *testing.T) {
	for _, name := range []string{"haar", "Haar", "db1"} {
		wv, err := NewWavelet(name)
		require.NoError(t, err)
		require.Equal(t, "haar", wv.Name())
	}
	_, err := NewWavelet("db4")
	require.ErrorIs(t, err, ErrUnknownWavelet)
	require.ErrorIs(t, err, ErrConfiguration)
}
