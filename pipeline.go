// Package wavemark hides a bit vector in the Haar wavelet domain of a grayscale
// image and recovers it after a random attack. Embedding, attack and extraction
// form one chain with hand-derived gradients, so both learned stages train
// jointly.
package wavemark

import (
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Pipeline composes embed → attack → extract into one differentiable chain.
// The embedder and extractor run per sample in parallel; attacks run once per
// distinct attack id over the samples that requested it.
type Pipeline struct {
	model    *Model
	attacker *Attacker
	workers  int
}

func NewPipeline(model *Model, attacker *Attacker) (*Pipeline, error) {
	mo, ao := model.Options(), attacker.Options()
	if mo.Height != ao.Height || mo.Width != ao.Width {
		return nil, fmt.Errorf("%w: model %dx%d, attacker %dx%d",
			ErrShapeMismatch, mo.Height, mo.Width, ao.Height, ao.Width)
	}
	return &Pipeline{model: model, attacker: attacker, workers: runtime.GOMAXPROCS(0)}, nil
}

// SetWorkers bounds the per-sample parallelism. n <= 0 means GOMAXPROCS.
func (p *Pipeline) SetWorkers(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p.workers = n
}

func (p *Pipeline) Model() *Model { return p.model }

func (p *Pipeline) Attacker() *Attacker { return p.attacker }

// Trace is the record of one forward pass. Backward turns loss gradients on
// its outputs into parameter gradients.
type Trace struct {
	Watermarked []*mat.Dense
	Attacked    []*mat.Dense
	Recovered   [][]float64
	Kinds       []AttackKind

	p        *Pipeline
	embeds   []*embedTrace
	extracts []*extractTrace
	groups   []attackGroup
}

type attackGroup struct {
	kind  AttackKind
	index []int
	back  Backward
}

// Run pushes a single cover and watermark through the pipeline and returns the
// watermarked image and the recovered bit probabilities.
func (p *Pipeline) Run(cover *mat.Dense, mark []float64, kind AttackKind) (*mat.Dense, []float64, error) {
	tr, err := p.Forward([]*mat.Dense{cover}, [][]float64{mark}, []AttackKind{kind})
	if err != nil {
		return nil, nil, err
	}
	return tr.Watermarked[0], tr.Recovered[0], nil
}

// Forward runs a batch. All inputs are validated before any work starts.
func (p *Pipeline) Forward(covers []*mat.Dense, marks [][]float64, kinds []AttackKind) (*Trace, error) {
	if err := p.validate(covers, marks, kinds); err != nil {
		return nil, err
	}
	n := len(covers)
	tr := &Trace{
		Watermarked: make([]*mat.Dense, n),
		Attacked:    make([]*mat.Dense, n),
		Recovered:   make([][]float64, n),
		Kinds:       slices.Clone(kinds),
		p:           p,
		embeds:      make([]*embedTrace, n),
		extracts:    make([]*extractTrace, n),
	}

	err := p.each(n, func(i int) error {
		img, et, err := p.model.Embedder.forward(covers[i], marks[i])
		if err != nil {
			return fmt.Errorf("embed sample %d: %w", i, err)
		}
		tr.Watermarked[i], tr.embeds[i] = img, et
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, kind := range distinct(kinds) {
		g := attackGroup{kind: kind}
		sub := make([]*mat.Dense, 0, n)
		for i, k := range kinds {
			if k == kind {
				g.index = append(g.index, i)
				sub = append(sub, tr.Watermarked[i])
			}
		}
		out, back, err := p.attacker.Apply(sub, kind)
		if err != nil {
			return nil, fmt.Errorf("attack %s: %w", kind, err)
		}
		for j, i := range g.index {
			tr.Attacked[i] = out[j]
		}
		g.back = back
		tr.groups = append(tr.groups, g)
	}

	err = p.each(n, func(i int) error {
		xt, err := p.model.Extractor.forward(tr.Attacked[i])
		if err != nil {
			return fmt.Errorf("extract sample %d: %w", i, err)
		}
		tr.extracts[i] = xt
		tr.Recovered[i] = xt.probs.RawVector().Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Backward takes the loss gradients with respect to the watermarked images and
// the recovered probabilities and returns the summed parameter gradients.
// Either argument may be nil, as may individual entries of dWatermarked.
func (t *Trace) Backward(dWatermarked []*mat.Dense, dRecovered [][]float64) (*Grads, error) {
	n := len(t.Watermarked)
	if dWatermarked != nil && len(dWatermarked) != n {
		return nil, fmt.Errorf("%w: %d image gradients for %d samples", ErrShapeMismatch, len(dWatermarked), n)
	}
	if dRecovered != nil && len(dRecovered) != n {
		return nil, fmt.Errorf("%w: %d watermark gradients for %d samples", ErrShapeMismatch, len(dRecovered), n)
	}
	model := t.p.model
	grads := make([]*Grads, n)
	for i := range grads {
		grads[i] = model.NewGrads()
	}

	dAttacked := make([]*mat.Dense, n)
	if dRecovered != nil {
		err := t.p.each(n, func(i int) error {
			d, err := model.Extractor.backward(t.extracts[i], dRecovered[i], grads[i].Extractor)
			if err != nil {
				return fmt.Errorf("extract sample %d: %w", i, err)
			}
			dAttacked[i] = d
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	dEmbedded := make([]*mat.Dense, n)
	if dRecovered != nil {
		for _, g := range t.groups {
			sub := make([]*mat.Dense, len(g.index))
			for j, i := range g.index {
				sub[j] = dAttacked[i]
			}
			back := g.back(sub)
			for j, i := range g.index {
				dEmbedded[i] = back[j]
			}
		}
	}
	for i := range dEmbedded {
		var extra *mat.Dense
		if dWatermarked != nil {
			extra = dWatermarked[i]
		}
		switch {
		case dEmbedded[i] == nil && extra == nil:
			r, c := t.Watermarked[i].Dims()
			dEmbedded[i] = mat.NewDense(r, c, nil)
		case dEmbedded[i] == nil:
			dEmbedded[i] = extra
		case extra != nil:
			var sum mat.Dense
			sum.Add(dEmbedded[i], extra)
			dEmbedded[i] = &sum
		}
	}

	err := t.p.each(n, func(i int) error {
		if _, _, err := model.Embedder.backward(t.embeds[i], dEmbedded[i], grads[i].Embedder); err != nil {
			return fmt.Errorf("embed sample %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := grads[0]
	for _, g := range grads[1:] {
		total.Add(g)
	}
	return total, nil
}

func (p *Pipeline) validate(covers []*mat.Dense, marks [][]float64, kinds []AttackKind) error {
	if len(covers) == 0 {
		return fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	if len(marks) != len(covers) || len(kinds) != len(covers) {
		return fmt.Errorf("%w: %d covers, %d watermarks, %d attack ids",
			ErrShapeMismatch, len(covers), len(marks), len(kinds))
	}
	opt := p.model.Options()
	maxID := p.attacker.Options().MaxAttackID
	for i := range covers {
		if covers[i] == nil || covers[i].IsEmpty() {
			return fmt.Errorf("%w: sample %d has no cover", ErrShapeMismatch, i)
		}
		if h, w := covers[i].Dims(); h != opt.Height || w != opt.Width {
			return fmt.Errorf("%w: sample %d cover %dx%d, want %dx%d", ErrShapeMismatch, i, h, w, opt.Height, opt.Width)
		}
		if len(marks[i]) != opt.WatermarkBits {
			return fmt.Errorf("%w: sample %d watermark length %d, want %d",
				ErrShapeMismatch, i, len(marks[i]), opt.WatermarkBits)
		}
		if kinds[i] < AttackNone || kinds[i] > maxID {
			return fmt.Errorf("%w: sample %d attack id %d not in [0, %d]", ErrUnknownAttack, i, kinds[i], maxID)
		}
	}
	return nil
}

func (p *Pipeline) each(n int, fn func(i int) error) error {
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range n {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}

func distinct(kinds []AttackKind) []AttackKind {
	out := slices.Clone(kinds)
	slices.Sort(out)
	return slices.Compact(out)
}
