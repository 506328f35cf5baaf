package wavemark

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBilinearWeightsRowsSumToOne(t *testing.T) {
	for _, sz := range [][2]int{{128, 256}, {256, 154}, {5, 8}, {8, 5}, {1, 4}, {4, 1}} {
		r := bilinearWeights(sz[0], sz[1])
		for i := range sz[0] {
			require.InDelta(t, 1, mat.Sum(r.RowView(i)), 1e-12, "%v row %d", sz, i)
		}
	}
}

func TestBilinearWeightsSameSizeIsIdentity(t *testing.T) {
	r := bilinearWeights(6, 6)
	require.True(t, mat.Equal(r, eye(6)))
}

func TestResizeBilinearConstant(t *testing.T) {
	out := resizeBilinear(constantImage(16, 16, 0.3), 9, 11)
	r, c := out.Dims()
	require.Equal(t, 9, r)
	require.Equal(t, 11, c)
	require.True(t, mat.EqualApprox(out, constantImage(9, 11, 0.3), 1e-12))
}

func TestScaledSize(t *testing.T) {
	for f := 0.5; f <= 0.75; f += 0.01 {
		h, w := ScaledSize(256, 256, f)
		want := int(math.Round(256 * f))
		require.Equal(t, want, h)
		require.Equal(t, want, w)
	}
	h, w := ScaledSize(256, 200, 0.6)
	require.Equal(t, 154, h)
	require.Equal(t, 120, w)
	h, w = ScaledSize(1, 1, 0.5)
	require.Equal(t, 1, h)
	require.Equal(t, 1, w)
}

func TestCropBoxBounds(t *testing.T) {
	for r := 0.05; r <= 0.15+1e-9; r += 0.001 {
		box := CropBox(256, 256, r)
		require.GreaterOrEqual(t, float64(box.Dy()), 256*0.70, "ratio %g", r)
		require.LessOrEqual(t, float64(box.Dy()), 256*0.90, "ratio %g", r)
		require.Equal(t, box.Dy(), box.Dx())
		require.Equal(t, box.Min.Y, 256-box.Max.Y)
	}
}

func TestResizeWithCropOrPad(t *testing.T) {
	img := constantImage(4, 4, 1)
	require.Same(t, img, resizeWithCropOrPad(img, 4, 4))

	padded := resizeWithCropOrPad(img, 6, 8)
	r, c := padded.Dims()
	require.Equal(t, 6, r)
	require.Equal(t, 8, c)
	require.Equal(t, 16.0, mat.Sum(padded))
	require.Equal(t, 1.0, padded.At(1, 2))
	require.Equal(t, 0.0, padded.At(0, 0))

	cropped := resizeWithCropOrPad(randomImage(newRand(3), 6, 6), 2, 2)
	r, c = cropped.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}
