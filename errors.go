package wavemark

import (
	"errors"
	"fmt"
)

// Every configuration failure wraps ErrConfiguration, so callers can match the
// whole class with errors.Is and the specific cause with the narrower sentinel.
var (
	ErrConfiguration = errors.New("wavemark: configuration error")

	ErrShapeMismatch        = fmt.Errorf("%w: shape mismatch", ErrConfiguration)
	ErrOddDimensions        = fmt.Errorf("%w: dimensions not divisible by 2", ErrConfiguration)
	ErrUnknownAttack        = fmt.Errorf("%w: attack id out of range", ErrConfiguration)
	ErrUnknownWavelet       = fmt.Errorf("%w: unsupported wavelet", ErrConfiguration)
	ErrArchitectureMismatch = fmt.Errorf("%w: parameter blob does not match architecture", ErrConfiguration)
)
