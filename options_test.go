package wavemark

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsValid(t *testing.T) {
	opt := DefaultOptions()
	require.NoError(t, opt.Validate())
	require.Equal(t, 256, opt.Height)
	require.Equal(t, 256, opt.WatermarkBits)
	require.Equal(t, AttackDropout, opt.MaxAttackID)
	require.True(t, opt.SharedDraws)
	require.Equal(t, 50, opt.Attack.JPEGQuality)
}

func TestOptionsFromSize(t *testing.T) {
	opt := OptionsFromSize(image.Pt(64, 48))
	require.Equal(t, 48, opt.Height)
	require.Equal(t, 64, opt.Width)
	require.Equal(t, 8, opt.GridSize)
	require.NoError(t, opt.Validate())

	opt = OptionsFromSize(image.Pt(512, 512))
	require.Equal(t, 32, opt.GridSize)

	opt = OptionsFromSize(image.Pt(2*7*5, 2*7*5))
	require.Equal(t, 7, opt.GridSize)

	require.Equal(t, DefaultOptions(), OptionsFromSize(image.Pt(65, 64)))
}

func TestOptionsValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Options)
		want   error
	}{
		"odd height":        {func(o *Options) { o.Height = 255 }, ErrOddDimensions},
		"zero width":        {func(o *Options) { o.Width = 0 }, ErrShapeMismatch},
		"non square bits":   {func(o *Options) { o.WatermarkBits = 200 }, ErrConfiguration},
		"grid not dividing": {func(o *Options) { o.GridSize = 24 }, ErrConfiguration},
		"no hidden units":   {func(o *Options) { o.HiddenUnits = 0 }, ErrConfiguration},
		"wavelet":           {func(o *Options) { o.Wavelet = "sym4" }, ErrUnknownWavelet},
		"max attack":        {func(o *Options) { o.MaxAttackID = AttackDropout + 1 }, ErrUnknownAttack},
		"combined only":     {func(o *Options) { o.MaxAttackID = AttackCombined }, ErrUnknownAttack},
		"crop range":        {func(o *Options) { o.Attack.CropMax = 0.6 }, ErrConfiguration},
		"scale inverted":    {func(o *Options) { o.Attack.ScaleMin = 0.8 }, ErrConfiguration},
		"scale zero":        {func(o *Options) { o.Attack.ScaleMin = 0 }, ErrConfiguration},
		"jpeg quality":      {func(o *Options) { o.Attack.JPEGQuality = 0 }, ErrConfiguration},
	}
	for name, tc := range cases {
		opt := DefaultOptions()
		tc.mutate(&opt)
		err := opt.Validate()
		require.ErrorIs(t, err, tc.want, name)
		require.ErrorIs(t, err, ErrConfiguration, name)
	}

	opt := DefaultOptions()
	opt.MaxAttackID = AttackNone
	require.NoError(t, opt.Validate())
}
