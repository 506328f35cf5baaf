// Package store persists model parameter blobs under a key derived from the
// model architecture.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/setanarut/wavemark"
)

var ErrNotFound = errors.New("store: parameters not found")

// Store keeps opaque parameter blobs.
type Store interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Key is the storage key for a model architecture.
func Key(arch wavemark.Architecture) string {
	return "wavemark:params:" + arch.Fingerprint()
}

// SaveModel encodes m and stores it under its architecture key.
func SaveModel(ctx context.Context, s Store, m *wavemark.Model) error {
	blob, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.Save(ctx, Key(m.Architecture()), blob); err != nil {
		return fmt.Errorf("save parameters: %w", err)
	}
	return nil
}

// LoadModel replaces the parameters of m with the stored ones.
func LoadModel(ctx context.Context, s Store, m *wavemark.Model) error {
	blob, err := s.Load(ctx, Key(m.Architecture()))
	if err != nil {
		return err
	}
	return m.UnmarshalBinary(blob)
}
