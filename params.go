package wavemark

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Architecture is the part of Options that fixes the parameter shapes.
// A parameter blob can only be loaded into a model with the same architecture.
type Architecture struct {
	Height        int    `json:"height" yaml:"height"`
	Width         int    `json:"width" yaml:"width"`
	WatermarkBits int    `json:"watermark_bits" yaml:"watermark_bits"`
	GridSize      int    `json:"grid_size" yaml:"grid_size"`
	HiddenUnits   int    `json:"hidden_units" yaml:"hidden_units"`
	Wavelet       string `json:"wavelet" yaml:"wavelet"`
}

func (o Options) Architecture() Architecture {
	return Architecture{
		Height:        o.Height,
		Width:         o.Width,
		WatermarkBits: o.WatermarkBits,
		GridSize:      o.GridSize,
		HiddenUnits:   o.HiddenUnits,
		Wavelet:       o.Wavelet,
	}
}

// Fingerprint is a stable hex key for the architecture.
func (a Architecture) Fingerprint() string {
	data, _ := json.Marshal(a)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

type paramBlob struct {
	Architecture Architecture      `json:"architecture"`
	Alpha        [4]float64        `json:"alpha"`
	Beta         [4]float64        `json:"beta"`
	Tensors      map[string][]byte `json:"tensors"`
}

func (m *Model) Architecture() Architecture { return m.opt.Architecture() }

// MarshalBinary encodes the learned parameters together with the architecture
// they belong to.
func (m *Model) MarshalBinary() ([]byte, error) {
	blob := paramBlob{
		Architecture: m.Architecture(),
		Alpha:        m.Embedder.Alpha,
		Beta:         m.Embedder.Beta,
		Tensors:      make(map[string][]byte),
	}
	for name, t := range m.tensors() {
		data, err := t.(interface{ MarshalBinary() ([]byte, error) }).MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		blob.Tensors[name] = data
	}
	return json.Marshal(blob)
}

// UnmarshalBinary replaces the learned parameters with those in data. The
// model is left untouched when data does not match its architecture.
func (m *Model) UnmarshalBinary(data []byte) error {
	var blob paramBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if want := m.Architecture(); blob.Architecture != want {
		return fmt.Errorf("%w: blob %+v, model %+v", ErrArchitectureMismatch, blob.Architecture, want)
	}

	decoded := make(map[string]mat.Matrix)
	for name, t := range m.tensors() {
		raw, ok := blob.Tensors[name]
		if !ok {
			return fmt.Errorf("%w: missing tensor %s", ErrArchitectureMismatch, name)
		}
		wr, wc := t.Dims()
		switch t.(type) {
		case *mat.VecDense:
			var v mat.VecDense
			if err := v.UnmarshalBinary(raw); err != nil {
				return fmt.Errorf("decode %s: %w", name, err)
			}
			if v.Len() != wr {
				return fmt.Errorf("%w: tensor %s has %d entries, want %d", ErrArchitectureMismatch, name, v.Len(), wr)
			}
			decoded[name] = &v
		default:
			var d mat.Dense
			if err := d.UnmarshalBinary(raw); err != nil {
				return fmt.Errorf("decode %s: %w", name, err)
			}
			if r, c := d.Dims(); r != wr || c != wc {
				return fmt.Errorf("%w: tensor %s is %dx%d, want %dx%d", ErrArchitectureMismatch, name, r, c, wr, wc)
			}
			decoded[name] = &d
		}
	}

	for name, t := range m.tensors() {
		switch dst := t.(type) {
		case *mat.VecDense:
			dst.CopyVec(decoded[name].(*mat.VecDense))
		case *mat.Dense:
			dst.Copy(decoded[name])
		}
	}
	m.Embedder.Alpha = blob.Alpha
	m.Embedder.Beta = blob.Beta
	return nil
}

func (m *Model) tensors() map[string]mat.Matrix {
	return map[string]mat.Matrix{
		"embedder.proj":      m.Embedder.Proj,
		"embedder.proj_bias": m.Embedder.ProjBias,
		"extractor.w1":       m.Extractor.W1,
		"extractor.b1":       m.Extractor.B1,
		"extractor.w2":       m.Extractor.W2,
		"extractor.b2":       m.Extractor.B2,
	}
}
