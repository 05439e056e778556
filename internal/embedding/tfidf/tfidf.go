package tfidf

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"semsearch/internal/embedding"
	"semsearch/internal/textutil"
)

// DefaultDimension matches the output size of small sentence-transformer models.
const DefaultDimension = 384

// Embedder implements a TF-IDF vectorizer with hashed features.
// Terms are mapped to a fixed number of buckets, so the output length does
// not depend on the corpus. Until Prepare is called every term has the same
// IDF weight.
type Embedder struct {
	dimension int

	mu     sync.RWMutex
	idf    map[string]float64
	unseen float64
}

// NewEmbedder creates a TF-IDF embedder producing vectors of the given size.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension: dimension,
		unseen:    1,
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Prepare computes smoothed IDF values from the provided corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range textutil.ContentWords(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}
	N := float64(len(corpus))
	idf := make(map[string]float64, len(df))
	for term, n := range df {
		idf[term] = math.Log((1+N)/(1+float64(n))) + 1.0
	}

	e.mu.Lock()
	e.idf = idf
	e.unseen = math.Log(1+N) + 1.0
	e.mu.Unlock()
	return nil
}

// Embed computes one L2-normalised vector per text. Stopwords count only
// when a text has nothing else; texts without any word produce the zero
// vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vectorize(text)
	}
	return out, nil
}

func (e *Embedder) vectorize(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := textutil.ContentWords(text)
	if len(tokens) == 0 {
		// stopword-only text still needs a direction to be found again
		tokens = textutil.Words(text)
	}
	if len(tokens) == 0 {
		return vec
	}
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	terms := make([]string, 0, len(tf))
	for term := range tf {
		terms = append(terms, term)
	}
	// colliding terms must sum in a fixed order
	sort.Strings(terms)
	total := float64(len(tokens))
	for _, term := range terms {
		w := float64(tf[term]) / total * e.weight(term)
		vec[e.bucket(term)] += float32(w)
	}
	return embedding.Normalize(vec)
}

func (e *Embedder) weight(term string) float64 {
	if e.idf == nil {
		return 1
	}
	if w, ok := e.idf[term]; ok {
		return w
	}
	return e.unseen
}

func (e *Embedder) bucket(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(e.dimension))
}
