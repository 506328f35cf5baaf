package wavemark

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type LossKind int

const (
	LossMAE LossKind = iota
	LossBCE
)

func (k LossKind) String() string {
	if k == LossBCE {
		return "bce"
	}
	return "mae"
}

func ParseLossKind(s string) (LossKind, error) {
	switch strings.ToLower(s) {
	case "", "mae":
		return LossMAE, nil
	case "bce":
		return LossBCE, nil
	default:
		return 0, fmt.Errorf("%w: unknown watermark loss %q", ErrConfiguration, s)
	}
}

type TrainOptions struct {
	Epochs    int
	BatchSize int
	// Adam step size.
	LearningRate float64
	// Weight of the cover/watermarked MSE. High values favour invisibility.
	ImageLossWeight float64
	// Weight of the bit loss. High values favour recoverability.
	WatermarkLossWeight float64
	WatermarkLoss       LossKind
	// Attack ids are drawn uniformly per sample from [AttackMinID, AttackMaxID].
	AttackMinID AttackKind
	AttackMaxID AttackKind
	// Log every N steps; the first and last steps are always logged.
	LogEvery int
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Epochs:              10,
		BatchSize:           2,
		LearningRate:        0.001,
		ImageLossWeight:     33,
		WatermarkLossWeight: 0.2,
		WatermarkLoss:       LossMAE,
		AttackMinID:         AttackNone,
		AttackMaxID:         AttackSaltPepper,
		LogEvery:            25,
	}
}

// Loss is the weighted objective of one step and its parts.
type Loss struct {
	Total     float64
	Image     float64
	Watermark float64
}

// Trainer fits a Pipeline's model with Adam.
type Trainer struct {
	pipeline *Pipeline
	opt      TrainOptions
	rng      *rand.Rand
	log      *zap.Logger

	step   int
	m1, m2 [][]float64
}

func NewTrainer(p *Pipeline, opt TrainOptions, rng *rand.Rand, log *zap.Logger) (*Trainer, error) {
	maxID := p.Attacker().Options().MaxAttackID
	switch {
	case opt.BatchSize <= 0, opt.Epochs < 0:
		return nil, fmt.Errorf("%w: epochs %d, batch size %d", ErrConfiguration, opt.Epochs, opt.BatchSize)
	case opt.LearningRate <= 0:
		return nil, fmt.Errorf("%w: learning rate %g", ErrConfiguration, opt.LearningRate)
	case opt.AttackMinID < AttackNone || opt.AttackMinID > opt.AttackMaxID || opt.AttackMaxID > maxID:
		return nil, fmt.Errorf("%w: training attack range [%d, %d], max %d",
			ErrUnknownAttack, opt.AttackMinID, opt.AttackMaxID, maxID)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Trainer{pipeline: p, opt: opt, rng: rng, log: log}
	for _, v := range p.Model().params() {
		t.m1 = append(t.m1, make([]float64, len(v)))
		t.m2 = append(t.m2, make([]float64, len(v)))
	}
	return t, nil
}

// Steps is the number of optimizer updates applied so far.
func (t *Trainer) Steps() int { return t.step }

// Step runs one forward/backward pass over the batch and applies one Adam update.
func (t *Trainer) Step(covers []*mat.Dense, marks [][]float64, kinds []AttackKind) (Loss, error) {
	tr, err := t.pipeline.Forward(covers, marks, kinds)
	if err != nil {
		return Loss{}, err
	}
	loss, dImg, dMark := t.objective(covers, marks, tr)
	grads, err := tr.Backward(dImg, dMark)
	if err != nil {
		return Loss{}, err
	}
	t.apply(grads)
	return loss, nil
}

// objective evaluates the weighted loss and its gradients with respect to the
// watermarked images and the recovered probabilities.
func (t *Trainer) objective(covers []*mat.Dense, marks [][]float64, tr *Trace) (Loss, []*mat.Dense, [][]float64) {
	var loss Loss
	h, w := covers[0].Dims()
	pixels := float64(len(covers) * h * w)
	bits := float64(len(marks) * len(marks[0]))

	dImg := make([]*mat.Dense, len(covers))
	for i, cover := range covers {
		var diff mat.Dense
		diff.Sub(tr.Watermarked[i], cover)
		loss.Image += sumElem(&diff, &diff) / pixels
		diff.Scale(2*t.opt.ImageLossWeight/pixels, &diff)
		dImg[i] = &diff
	}

	const eps = 1e-7
	dMark := make([][]float64, len(marks))
	for i, mark := range marks {
		d := make([]float64, len(mark))
		for j, y := range mark {
			p := tr.Recovered[i][j]
			switch t.opt.WatermarkLoss {
			case LossBCE:
				pc := min(1-eps, max(eps, p))
				loss.Watermark -= (y*math.Log(pc) + (1-y)*math.Log(1-pc)) / bits
				d[j] = (pc - y) / (pc * (1 - pc)) / bits
			default:
				loss.Watermark += math.Abs(p-y) / bits
				switch {
				case p > y:
					d[j] = 1 / bits
				case p < y:
					d[j] = -1 / bits
				}
			}
			d[j] *= t.opt.WatermarkLossWeight
		}
		dMark[i] = d
	}
	loss.Total = t.opt.ImageLossWeight*loss.Image + t.opt.WatermarkLossWeight*loss.Watermark
	return loss, dImg, dMark
}

func (t *Trainer) apply(g *Grads) {
	const (
		beta1   = 0.9
		beta2   = 0.999
		adamEps = 1e-7
	)
	t.step++
	b1t := 1.0 - math.Pow(beta1, float64(t.step))
	b2t := 1.0 - math.Pow(beta2, float64(t.step))
	params, grads := t.pipeline.Model().params(), g.flat()
	for k, u := range params {
		gk, m1, m2 := grads[k], t.m1[k], t.m2[k]
		for i := range u {
			m1[i] = beta1*m1[i] + (1.0-beta1)*gk[i]
			m2[i] = beta2*m2[i] + (1.0-beta2)*gk[i]*gk[i]
			mhat := m1[i] / b1t
			vhat := m2[i] / b2t
			u[i] -= t.opt.LearningRate * mhat / (math.Sqrt(vhat) + adamEps)
		}
	}
}

// Fit trains on covers for the configured number of epochs. Every epoch pairs
// each cover with a fresh random watermark and draws a random attack per
// sample. It stops early when ctx is cancelled.
func (t *Trainer) Fit(ctx context.Context, covers []*mat.Dense) ([]Loss, error) {
	if len(covers) == 0 {
		return nil, fmt.Errorf("%w: no training images", ErrShapeMismatch)
	}
	bitsLen := t.pipeline.Model().Options().WatermarkBits
	batches := (len(covers) + t.opt.BatchSize - 1) / t.opt.BatchSize
	total := t.opt.Epochs * batches
	history := make([]Loss, 0, t.opt.Epochs)

	for epoch := range t.opt.Epochs {
		order := t.rng.Perm(len(covers))
		var sum Loss
		for b := range batches {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			idx := order[b*t.opt.BatchSize : min(len(order), (b+1)*t.opt.BatchSize)]
			batch := make([]*mat.Dense, len(idx))
			marks := make([][]float64, len(idx))
			kinds := make([]AttackKind, len(idx))
			for j, i := range idx {
				batch[j] = covers[i]
				marks[j] = RandomWatermark(t.rng, bitsLen)
				kinds[j] = t.opt.AttackMinID + AttackKind(t.rng.IntN(int(t.opt.AttackMaxID-t.opt.AttackMinID)+1))
			}
			loss, err := t.Step(batch, marks, kinds)
			if err != nil {
				return history, fmt.Errorf("epoch %d batch %d: %w", epoch+1, b+1, err)
			}
			sum.Total += loss.Total
			sum.Image += loss.Image
			sum.Watermark += loss.Watermark

			if it := t.step; it == 1 || it == total || (t.opt.LogEvery > 0 && it%t.opt.LogEvery == 0) {
				t.log.Info("train step",
					zap.Int("step", it),
					zap.Int("epoch", epoch+1),
					zap.Float64("loss", loss.Total),
					zap.Float64("image_mse", loss.Image),
					zap.Float64("watermark_loss", loss.Watermark))
			}
		}
		n := float64(batches)
		mean := Loss{Total: sum.Total / n, Image: sum.Image / n, Watermark: sum.Watermark / n}
		history = append(history, mean)
		t.log.Info("epoch done",
			zap.Int("epoch", epoch+1),
			zap.Int("epochs", t.opt.Epochs),
			zap.Float64("loss", mean.Total))
	}
	return history, nil
}

// RandomWatermark draws n uniform bits as 0/1 floats.
func RandomWatermark(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if rng.IntN(2) == 1 {
			out[i] = 1
		}
	}
	return out
}
