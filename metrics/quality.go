package metrics

import "gonum.org/v1/gonum/mat"

type Quality int

const (
	QualityPoor Quality = iota
	QualityFair
	QualityGood
	QualityExcellent
)

func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	default:
		return "Poor"
	}
}

// Rate grades a result; every threshold of a grade must be met.
func Rate(psnr, ssim, ber float64) Quality {
	switch {
	case psnr > 38 && ssim > 0.96 && ber < 3:
		return QualityExcellent
	case psnr > 35 && ssim > 0.94 && ber < 5:
		return QualityGood
	case psnr > 30 && ssim > 0.90 && ber < 10:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Report bundles the three scores of one embed/extract round.
type Report struct {
	PSNR    float64 `yaml:"psnr"`
	SSIM    float64 `yaml:"ssim"`
	BER     float64 `yaml:"ber"`
	Quality Quality `yaml:"-"`
}

// Evaluate scores the watermarked image against its cover and the recovered
// bits against the embedded ones, binarising at 0.5.
func Evaluate(cover, watermarked *mat.Dense, mark, recovered []float64) Report {
	r := Report{
		PSNR: PSNR(cover, watermarked),
		SSIM: SSIM(cover, watermarked),
		BER:  BER(mark, recovered, 0.5),
	}
	r.Quality = Rate(r.PSNR, r.SSIM, r.BER)
	return r
}
