package wavemark

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

type AttackKind int

const (
	AttackNone AttackKind = iota
	AttackCombined
	AttackGaussianNoise
	AttackJPEG
	AttackCropping
	AttackScaling
	AttackSaltPepper
	AttackDropout
)

func (k AttackKind) String() string {
	switch k {
	case AttackNone:
		return "none"
	case AttackCombined:
		return "combined"
	case AttackGaussianNoise:
		return "gaussian_noise"
	case AttackJPEG:
		return "jpeg"
	case AttackCropping:
		return "cropping"
	case AttackScaling:
		return "scaling"
	case AttackSaltPepper:
		return "salt_pepper"
	case AttackDropout:
		return "dropout"
	default:
		return fmt.Sprintf("attack(%d)", int(k))
	}
}

// Backward maps the loss gradient with respect to an operation's output batch
// onto the gradient with respect to its input batch.
type Backward func(grad []*mat.Dense) []*mat.Dense

// attackFunc applies one variant to a batch. Every parameter it samples is
// shared by the batch it is given.
type attackFunc func(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error)

// leafAttacks are the variants the combined attack may draw from. Kept apart
// from attackTable so the combined entry can refer to it.
var leafAttacks = [...]attackFunc{
	AttackGaussianNoise: gaussianNoiseAttack,
	AttackJPEG:          jpegAttack,
	AttackCropping:      croppingAttack,
	AttackScaling:       scalingAttack,
	AttackSaltPepper:    saltPepperAttack,
	AttackDropout:       dropoutAttack,
}

var attackTable = [...]attackFunc{
	AttackNone:          identityAttack,
	AttackCombined:      combinedAttack,
	AttackGaussianNoise: gaussianNoiseAttack,
	AttackJPEG:          jpegAttack,
	AttackCropping:      croppingAttack,
	AttackScaling:       scalingAttack,
	AttackSaltPepper:    saltPepperAttack,
	AttackDropout:       dropoutAttack,
}

// Attacker dispatches attack identifiers to their variants. Each call draws
// fresh randomness from rng; an Attacker is not safe for concurrent use.
type Attacker struct {
	opt Options
	rng *rand.Rand
}

func NewAttacker(opt Options, rng *rand.Rand) (*Attacker, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Attacker{opt: opt, rng: rng}, nil
}

func (a *Attacker) Options() Options { return a.opt }

// Apply runs the variant selected by kind over the batch. Only that variant
// executes; the returned Backward differentiates through it alone.
func (a *Attacker) Apply(batch []*mat.Dense, kind AttackKind) ([]*mat.Dense, Backward, error) {
	if kind < AttackNone || kind > a.opt.MaxAttackID {
		return nil, nil, fmt.Errorf("%w: %d not in [0, %d]", ErrUnknownAttack, kind, a.opt.MaxAttackID)
	}
	if len(batch) == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	for i, img := range batch {
		if err := a.checkImage(img); err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	fn := attackTable[kind]
	if a.opt.SharedDraws || len(batch) == 1 {
		return fn(batch, &a.opt, a.rng)
	}

	out := make([]*mat.Dense, len(batch))
	backs := make([]Backward, len(batch))
	for i, img := range batch {
		res, back, err := fn([]*mat.Dense{img}, &a.opt, a.rng)
		if err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i], backs[i] = res[0], back
	}
	return out, func(grad []*mat.Dense) []*mat.Dense {
		dx := make([]*mat.Dense, len(grad))
		for i, g := range grad {
			dx[i] = backs[i]([]*mat.Dense{g})[0]
		}
		return dx
	}, nil
}

// ApplyImage attacks a single image.
func (a *Attacker) ApplyImage(img *mat.Dense, kind AttackKind) (*mat.Dense, error) {
	out, _, err := a.Apply([]*mat.Dense{img}, kind)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (a *Attacker) checkImage(img *mat.Dense) error {
	if img == nil || img.IsEmpty() {
		return fmt.Errorf("%w: empty image", ErrShapeMismatch)
	}
	if h, w := img.Dims(); h != a.opt.Height || w != a.opt.Width {
		return fmt.Errorf("%w: image %dx%d, want %dx%d", ErrShapeMismatch, h, w, a.opt.Height, a.opt.Width)
	}
	return nil
}

// ============ COMBINED ============

// planCombined draws the chain of the combined attack: two variants always,
// a third with probability 1/2, each uniform over AttackGaussianNoise..maxID.
// Repeats are allowed.
func planCombined(rng *rand.Rand, maxID AttackKind) []AttackKind {
	n := int(maxID-AttackGaussianNoise) + 1
	pick := func() AttackKind { return AttackGaussianNoise + AttackKind(rng.IntN(n)) }
	plan := []AttackKind{pick(), pick()}
	if rng.Float64() > 0.5 {
		plan = append(plan, pick())
	}
	return plan
}

func combinedAttack(batch []*mat.Dense, opt *Options, rng *rand.Rand) ([]*mat.Dense, Backward, error) {
	plan := planCombined(rng, opt.MaxAttackID)
	backs := make([]Backward, 0, len(plan))
	out := batch
	for _, kind := range plan {
		res, back, err := leafAttacks[kind](out, opt, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("combined %s: %w", kind, err)
		}
		out = res
		backs = append(backs, back)
	}
	return out, func(grad []*mat.Dense) []*mat.Dense {
		for i := len(backs) - 1; i >= 0; i-- {
			grad = backs[i](grad)
		}
		return grad
	}, nil
}
