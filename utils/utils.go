package utils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/mat"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"}

func ReadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// ToGray resizes img to w×h with bilinear filtering and returns its luma
// (ITU-R BT.601 weights) in [0,1].
func ToGray(img image.Image, h, w int) *mat.Dense {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	out := mat.NewDense(h, w, nil)
	raw := out.RawMatrix()
	for y := range h {
		for x := range w {
			c, _ := colorful.MakeColor(dst.RGBAAt(x, y))
			raw.Data[y*raw.Stride+x] = 0.299*c.R + 0.587*c.G + 0.114*c.B
		}
	}
	return out
}

// ReadGray loads an image file as an h×w grayscale matrix.
func ReadGray(path string, h, w int) (*mat.Dense, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	return ToGray(img, h, w), nil
}

// ReadGrayDir loads up to limit images (all when limit <= 0) from dir in name
// order. It returns the matrices and their file names.
func ReadGrayDir(dir string, h, w, limit int) ([]*mat.Dense, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	var images []*mat.Dense
	var names []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		img, err := ReadGray(filepath.Join(dir, e.Name()), h, w)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
		names = append(names, e.Name())
		if limit > 0 && len(images) == limit {
			break
		}
	}
	if len(images) == 0 {
		return nil, nil, fmt.Errorf("no images found in %s", dir)
	}
	return images, names, nil
}

// GrayImage converts a [0,1] matrix to an 8-bit image, clamping out-of-range
// values.
func GrayImage(m *mat.Dense) *image.Gray {
	h, w := m.Dims()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := max(0, min(1, m.At(y, x)))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v * 255))})
		}
	}
	return img
}

func SaveGray(m *mat.Dense, filename string) error {
	return SaveImage(GrayImage(m), filename)
}

func SaveGrayImages(images []*mat.Dense, dir, prefix string) error {
	for i := range images {
		if err := SaveGray(images[i], filepath.Join(dir, prefix+"_0"+strconv.Itoa(i)+".png")); err != nil {
			return err
		}
	}
	return nil
}
