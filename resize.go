package wavemark

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// bilinearWeights returns the out×in matrix R such that R·v resamples v to
// length out using half-pixel centres, so a 2-D resize is Ry·X·Rxᵀ.
func bilinearWeights(out, in int) *mat.Dense {
	r := mat.NewDense(out, in, nil)
	raw := r.RawMatrix()
	scale := float64(in) / float64(out)
	for i := range out {
		src := (float64(i)+0.5)*scale - 0.5
		fl := math.Floor(src)
		lower := max(int(fl), 0)
		upper := min(int(math.Ceil(src)), in-1)
		lerp := src - fl
		row := i * raw.Stride
		raw.Data[row+lower] += 1 - lerp
		raw.Data[row+upper] += lerp
	}
	return r
}

// resizeBilinear resamples img to h×w.
func resizeBilinear(img *mat.Dense, h, w int) *mat.Dense {
	rows, cols := img.Dims()
	ry := bilinearWeights(h, rows)
	rx := bilinearWeights(w, cols)
	var tmp, out mat.Dense
	tmp.Mul(ry, img)
	out.Mul(&tmp, rx.T())
	return &out
}

// ScaledSize is the intermediate geometry of the scaling attack.
func ScaledSize(h, w int, factor float64) (int, int) {
	return max(1, int(math.Round(float64(h)*factor))), max(1, int(math.Round(float64(w)*factor)))
}

// CropBox is the region the cropping attack keeps for the given edge ratio.
// The same ratio is applied to both axes and edge widths round to the nearest
// pixel.
func CropBox(h, w int, ratio float64) image.Rectangle {
	ch := int(math.Round(float64(h) * ratio))
	cw := int(math.Round(float64(w) * ratio))
	return image.Rect(cw, ch, w-cw, h-ch)
}

// resizeWithCropOrPad centres img inside an h×w canvas, trimming or zero
// padding symmetrically. It returns img itself when the size already matches.
func resizeWithCropOrPad(img *mat.Dense, h, w int) *mat.Dense {
	rows, cols := img.Dims()
	if rows == h && cols == w {
		return img
	}
	out := mat.NewDense(h, w, nil)
	srcY := max(0, (rows-h)/2)
	srcX := max(0, (cols-w)/2)
	dstY := max(0, (h-rows)/2)
	dstX := max(0, (w-cols)/2)
	n := min(rows, h)
	m := min(cols, w)
	out.Slice(dstY, dstY+n, dstX, dstX+m).(*mat.Dense).
		Copy(img.Slice(srcY, srcY+n, srcX, srcX+m))
	return out
}
