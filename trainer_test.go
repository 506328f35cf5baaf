package wavemark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

func TestParseLossKind(t *testing.T) {
	k, err := ParseLossKind("BCE")
	require.NoError(t, err)
	require.Equal(t, LossBCE, k)
	k, err = ParseLossKind("")
	require.NoError(t, err)
	require.Equal(t, LossMAE, k)
	require.Equal(t, "mae", k.String())
	_, err = ParseLossKind("huber")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestNewTrainerValidation(t *testing.T) {
	p := newTinyPipeline(t, tinyOptions(), 60)
	cases := map[string]func(*TrainOptions){
		"batch size":    func(o *TrainOptions) { o.BatchSize = 0 },
		"learning rate": func(o *TrainOptions) { o.LearningRate = 0 },
		"attack max":    func(o *TrainOptions) { o.AttackMaxID = AttackDropout + 1 },
		"attack order":  func(o *TrainOptions) { o.AttackMinID, o.AttackMaxID = AttackJPEG, AttackNone },
	}
	for name, mutate := range cases {
		opt := DefaultTrainOptions()
		mutate(&opt)
		_, err := NewTrainer(p, opt, nil, nil)
		require.ErrorIs(t, err, ErrConfiguration, name)
	}
}

func TestTrainerReducesLoss(t *testing.T) {
	opt := tinyOptions()
	opt.Height, opt.Width = 16, 16
	opt.HiddenUnits = 16
	p := newTinyPipeline(t, opt, 61)

	train := DefaultTrainOptions()
	train.LearningRate = 0.01
	train.WatermarkLoss = LossBCE
	train.WatermarkLossWeight = 1
	trainer, err := NewTrainer(p, train, newRand(62), zaptest.NewLogger(t))
	require.NoError(t, err)

	rng := newRand(63)
	covers := make([]*mat.Dense, 4)
	marks := make([][]float64, 4)
	for i := range covers {
		covers[i] = randomImage(rng, 16, 16)
	}
	marks[0] = []float64{1, 0, 1, 0}
	marks[1] = []float64{0, 1, 1, 0}
	marks[2] = []float64{1, 1, 0, 1}
	marks[3] = []float64{0, 0, 0, 1}
	kinds := make([]AttackKind, 4)

	first, err := trainer.Step(covers, marks, kinds)
	require.NoError(t, err)
	var last Loss
	for range 300 {
		last, err = trainer.Step(covers, marks, kinds)
		require.NoError(t, err)
	}
	require.Equal(t, 301, trainer.Steps())
	require.Less(t, last.Watermark, first.Watermark/2)
	require.InDelta(t, train.ImageLossWeight*last.Image+last.Watermark, last.Total, 1e-12)
}

func TestTrainerFit(t *testing.T) {
	opt := tinyOptions()
	p := newTinyPipeline(t, opt, 64)
	train := DefaultTrainOptions()
	train.Epochs = 3
	train.BatchSize = 2
	train.LogEvery = 1
	trainer, err := NewTrainer(p, train, newRand(65), zaptest.NewLogger(t))
	require.NoError(t, err)

	rng := newRand(66)
	covers := []*mat.Dense{randomImage(rng, 8, 8), randomImage(rng, 8, 8), randomImage(rng, 8, 8)}
	history, err := trainer.Fit(context.Background(), covers)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, 6, trainer.Steps())
	for _, l := range history {
		require.Greater(t, l.Total, 0.0)
	}

	_, err = trainer.Fit(context.Background(), nil)
	require.ErrorIs(t, err, ErrConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	history, err = trainer.Fit(ctx, covers)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, history)
}

func TestRandomWatermark(t *testing.T) {
	mark := RandomWatermark(newRand(67), 1024)
	require.Len(t, mark, 1024)
	ones := 0
	for _, b := range mark {
		require.True(t, b == 0 || b == 1)
		if b == 1 {
			ones++
		}
	}
	require.Greater(t, ones, 400)
	require.Less(t, ones, 624)
}
