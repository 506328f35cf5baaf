package wavemark

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestModelSaveLoadRoundTrip(t *testing.T) {
	opt := tinyOptions()
	opt.Height, opt.Width = 16, 16
	src, err := NewModel(opt, newRand(50))
	require.NoError(t, err)
	src.Embedder.Alpha = [4]float64{0.1, 0.2, 0.3, 0.4}
	src.Embedder.Beta = [4]float64{-0.1, 0, 0.05, 0.2}

	blob, err := src.MarshalBinary()
	require.NoError(t, err)

	dst, err := NewModel(opt, newRand(51))
	require.NoError(t, err)
	require.NoError(t, dst.UnmarshalBinary(blob))

	rng := newRand(52)
	cover := randomImage(rng, 16, 16)
	mark := RandomWatermark(rng, opt.WatermarkBits)
	want, err := src.Embedder.Embed(cover, mark)
	require.NoError(t, err)
	got, err := dst.Embedder.Embed(cover, mark)
	require.NoError(t, err)
	require.True(t, mat.Equal(want, got))

	wantBits, err := src.Extractor.Extract(want)
	require.NoError(t, err)
	gotBits, err := dst.Extractor.Extract(got)
	require.NoError(t, err)
	require.Equal(t, wantBits, gotBits)
}

func TestModelLoadArchitectureMismatch(t *testing.T) {
	opt := tinyOptions()
	src, err := NewModel(opt, newRand(53))
	require.NoError(t, err)
	blob, err := src.MarshalBinary()
	require.NoError(t, err)

	other := opt
	other.HiddenUnits = 5
	dst, err := NewModel(other, newRand(54))
	require.NoError(t, err)
	before := mat.DenseCopyOf(dst.Extractor.W1)

	err = dst.UnmarshalBinary(blob)
	require.ErrorIs(t, err, ErrArchitectureMismatch)
	require.ErrorIs(t, err, ErrConfiguration)
	require.True(t, mat.Equal(before, dst.Extractor.W1))
}

func TestModelLoadMissingTensor(t *testing.T) {
	opt := tinyOptions()
	m, err := NewModel(opt, newRand(55))
	require.NoError(t, err)
	blob, err := m.MarshalBinary()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(blob, &raw))
	var tensors map[string][]byte
	require.NoError(t, json.Unmarshal(raw["tensors"], &tensors))
	delete(tensors, "extractor.w2")
	raw["tensors"], err = json.Marshal(tensors)
	require.NoError(t, err)
	broken, err := json.Marshal(raw)
	require.NoError(t, err)

	require.ErrorIs(t, m.UnmarshalBinary(broken), ErrArchitectureMismatch)
	require.Error(t, m.UnmarshalBinary([]byte("not json")))
}

func TestArchitectureFingerprint(t *testing.T) {
	a := DefaultOptions().Architecture()
	b := DefaultOptions()
	b.SharedDraws = false
	b.Attack.JPEGQuality = 75
	require.Equal(t, a.Fingerprint(), b.Architecture().Fingerprint())
	require.Len(t, a.Fingerprint(), 32)

	c := DefaultOptions()
	c.HiddenUnits = 128
	require.NotEqual(t, a.Fingerprint(), c.Architecture().Fingerprint())
}
