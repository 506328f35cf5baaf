package utils

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	xdraw "golang.org/x/image/draw"
)

// WatermarkFromImage turns a logo into a bit vector of length bits, which
// must be a perfect square. The logo is resized to a √bits × √bits grid and
// its pixels are split into two colour clusters; the larger cluster is taken
// as background and encodes 0.
func WatermarkFromImage(img image.Image, bits int) ([]float64, error) {
	side := int(math.Sqrt(float64(bits)))
	if side*side != bits || side == 0 {
		return nil, fmt.Errorf("watermark length %d is not a square", bits)
	}
	small := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	dataset := make(clusters.Observations, 0, bits)
	for y := range side {
		for x := range side {
			c, _ := colorful.MakeColor(small.RGBAAt(x, y))
			l, a, b := c.Lab()
			dataset = append(dataset, clusters.Coordinates{l, a, b})
		}
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, 2)
	if err != nil || len(cc) != 2 || len(cc[0].Observations) == 0 || len(cc[1].Observations) == 0 ||
		cc[0].Center.Distance(cc[1].Center) < 1e-3 {
		return lumaBits(small), nil
	}
	background := 0
	if len(cc[1].Observations) > len(cc[0].Observations) {
		background = 1
	}

	mark := make([]float64, bits)
	for i, o := range dataset {
		if cc.Nearest(o) != background {
			mark[i] = 1
		}
	}
	return mark, nil
}

// lumaBits marks dark pixels as 1. Used when the logo has a single colour.
func lumaBits(img *image.RGBA) []float64 {
	b := img.Bounds()
	mark := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, _ := colorful.MakeColor(img.RGBAAt(x, y))
			l, _, _ := c.Lab()
			if l < 0.5 {
				mark = append(mark, 1)
			} else {
				mark = append(mark, 0)
			}
		}
	}
	return mark
}

// AccentColor is the dominant colour of img, used to draw set bits.
func AccentColor(img image.Image) colorful.Color {
	c, _ := colorful.MakeColor(dominantcolor.Find(img))
	return c
}

// WatermarkImage renders a bit vector as a square grid of tiles. Values are
// treated as probabilities: each tile blends off towards on in Lab space.
func WatermarkImage(mark []float64, tile int, on, off colorful.Color) (*image.RGBA, error) {
	side := int(math.Sqrt(float64(len(mark))))
	if side*side != len(mark) || side == 0 {
		return nil, fmt.Errorf("watermark length %d is not a square", len(mark))
	}
	if tile <= 0 {
		tile = 8
	}
	img := image.NewRGBA(image.Rect(0, 0, side*tile, side*tile))
	for i, v := range mark {
		r, g, b := off.BlendLab(on, max(0, min(1, v))).Clamped().RGB255()
		col := color.RGBA{R: r, G: g, B: b, A: 255}
		x0, y0 := (i%side)*tile, (i/side)*tile
		for y := y0; y < y0+tile; y++ {
			for x := x0; x < x0+tile; x++ {
				img.SetRGBA(x, y, col)
			}
		}
	}
	return img, nil
}

func SaveWatermark(mark []float64, tile int, on, off colorful.Color, filename string) error {
	img, err := WatermarkImage(mark, tile, on, off)
	if err != nil {
		return err
	}
	return SaveImage(img, filename)
}
