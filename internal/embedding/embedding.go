// Package embedding holds helpers shared by the embedder backends.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"semsearch/internal/domain"
)

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// MeanPool averages the token vectors of one sequence, counting only
// positions where mask is non-zero. hidden is the flattened
// [seqLen x dim] output of a transformer for a single input.
func MeanPool(hidden []float32, mask []int64, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid hidden size %d", dim)
	}
	if len(hidden) != len(mask)*dim {
		return nil, fmt.Errorf("hidden state has %d values, expected %d tokens x %d", len(hidden), len(mask), dim)
	}
	acc := make([]float64, dim)
	var n float64
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[t*dim : (t+1)*dim]
		for j, x := range row {
			acc[j] += float64(x)
		}
		n++
	}
	out := make([]float32, dim)
	if n == 0 {
		return out, nil
	}
	for j := range acc {
		out[j] = float32(acc[j] / n)
	}
	return out, nil
}

// Cached memoises vectors per input text. Misses from one Embed call are
// sent to the wrapped embedder in a single batch.
type Cached struct {
	inner domain.Embedder
	cache sync.Map // text -> []float32
}

func NewCached(inner domain.Embedder) *Cached {
	return &Cached{inner: inner}
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Prepare forwards to the wrapped embedder when it learns corpus statistics.
// The cache is dropped because earlier vectors are no longer valid.
func (c *Cached) Prepare(corpus []string) error {
	p, ok := c.inner.(domain.Preparer)
	if !ok {
		return nil
	}
	if err := p.Prepare(corpus); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Load(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, v := range vecs {
		c.cache.Store(missing[j], v)
		out[missingIdx[j]] = v
	}
	return out, nil
}

var (
	_ domain.Embedder = (*Cached)(nil)
	_ domain.Preparer = (*Cached)(nil)
)
