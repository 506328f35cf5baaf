package wavemark

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// glorot fills a rows×cols matrix from U(-l, l), l = sqrt(6/(rows+cols)).
func glorot(rows, cols int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(rows, cols, data)
}

// affine returns W·x + b.
func affine(w *mat.Dense, x, b *mat.VecDense) *mat.VecDense {
	r, _ := w.Dims()
	z := mat.NewVecDense(r, nil)
	z.MulVec(w, x)
	z.AddVec(z, b)
	return z
}

func tanhVec(z *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(z.Len(), nil)
	for i := range z.Len() {
		out.SetVec(i, math.Tanh(z.AtVec(i)))
	}
	return out
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func sigmoidVec(z *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(z.Len(), nil)
	for i := range z.Len() {
		out.SetVec(i, sigmoid(z.AtVec(i)))
	}
	return out
}

// affineBackward accumulates the parameter gradients of z = W·x + b into dW
// and db and returns dL/dx.
func affineBackward(w *mat.Dense, x, dz *mat.VecDense, dW *mat.Dense, db *mat.VecDense) *mat.VecDense {
	dW.RankOne(dW, 1, dz, x)
	db.AddVec(db, dz)
	_, c := w.Dims()
	dx := mat.NewVecDense(c, nil)
	dx.MulVec(w.T(), dz)
	return dx
}

// blockRepeat spreads every cell of m over a br×bc block.
func blockRepeat(m *mat.Dense, br, bc int) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r*br, c*bc, nil)
	raw := out.RawMatrix()
	for y := range r * br {
		row := y * raw.Stride
		for x := range c * bc {
			raw.Data[row+x] = m.At(y/br, x/bc)
		}
	}
	return out
}

// blockSum is the adjoint of blockRepeat.
func blockSum(m *mat.Dense, br, bc int) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r/br, c/bc, nil)
	raw := out.RawMatrix()
	for y := range r {
		row := (y / br) * raw.Stride
		for x := range c {
			raw.Data[row+x/bc] += m.At(y, x)
		}
	}
	return out
}

// blockMean averages every br×bc block.
func blockMean(m *mat.Dense, br, bc int) *mat.Dense {
	out := blockSum(m, br, bc)
	out.Scale(1/float64(br*bc), out)
	return out
}

// flatten copies a matrix row by row into dst.
func flatten(dst []float64, m *mat.Dense) {
	r, c := m.Dims()
	for y := range r {
		for x := range c {
			dst[y*c+x] = m.At(y, x)
		}
	}
}

func sumElem(a, b *mat.Dense) float64 {
	var p mat.Dense
	p.MulElem(a, b)
	return mat.Sum(&p)
}
