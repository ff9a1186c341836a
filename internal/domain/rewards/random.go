package rewards

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// RandomSource yields uniformly distributed numbers in [0, 1).
type RandomSource interface {
	Next() float64
}

// SeededSource is a RandomSource backed by a PCG generator, so a seed
// reproduces the same sequence of draws.
type SeededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSeededSource(seed uint64) *SeededSource {
	return &SeededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomSource seeds from crypto/rand when seed is zero.
func NewRandomSource(seed uint64) (*SeededSource, error) {
	if seed == 0 {
		var err error
		if seed, err = NewSeed(); err != nil {
			return nil, err
		}
	}
	return NewSeededSource(seed), nil
}

func (s *SeededSource) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// FixedSource always returns the same value.
type FixedSource float64

func (f FixedSource) Next() float64 {
	return float64(f)
}
