package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"semsearch/internal/domain"
	"semsearch/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// Ties are broken by insertion order.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	spec    domain.CollectionSpec
	records []domain.Record
	mags    []float64
	texts   map[string]int
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) CreateCollection(_ context.Context, spec domain.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrStore, spec.Dimension)
	}
	if spec.Distance != domain.Cosine {
		return fmt.Errorf("%w: unsupported distance %q", domain.ErrStore, spec.Distance)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[spec.Name]; ok {
		return fmt.Errorf("%w: collection %q already exists", domain.ErrStore, spec.Name)
	}
	s.collections[spec.Name] = &collection{spec: spec, texts: make(map[string]int)}
	return nil
}

func (s *Storage) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Storage) DescribeCollection(_ context.Context, name string) (domain.CollectionSpec, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.CollectionSpec{}, false, nil
	}
	return c.spec, true, nil
}

// Upsert validates every vector before appending, so a rejected batch leaves
// the collection unchanged.
func (s *Storage) Upsert(_ context.Context, name string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != c.spec.Dimension {
			return fmt.Errorf("%w: %w: got %d, collection %q expects %d",
				domain.ErrStore, domain.ErrDimensionMismatch, len(r.Vector), name, c.spec.Dimension)
		}
	}
	for _, r := range records {
		vec := append([]float32(nil), r.Vector...)
		c.records = append(c.records, domain.Record{ID: r.ID, Text: r.Text, Vector: vec})
		c.mags = append(c.mags, vectorstore.Magnitude(vec))
		c.texts[r.Text]++
	}
	return nil
}

func (s *Storage) Query(_ context.Context, name string, vector []float32, topK int) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.spec.Dimension {
		return nil, fmt.Errorf("%w: %w: query has %d, collection %q expects %d",
			domain.ErrStore, domain.ErrDimensionMismatch, len(vector), name, c.spec.Dimension)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrStore, topK)
	}
	qm := vectorstore.Magnitude(vector)
	scores := make([]float64, len(c.records))
	for i := range c.records {
		scores[i] = vectorstore.CosineWithMagnitudes(c.records[i].Vector, c.mags[i], vector, qm)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.Match, 0, topK)
	for _, j := range idxs[:topK] {
		r := c.records[j]
		results = append(results, domain.Match{ID: r.ID, Text: r.Text, Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return 0, err
	}
	return len(c.records), nil
}

func (s *Storage) HasText(_ context.Context, name, text string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return false, err
	}
	return c.texts[text] > 0, nil
}

func (s *Storage) Close() error { return nil }

// get must be called with s.mu held.
func (s *Storage) get(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrStore, domain.ErrCollectionNotFound, name)
	}
	return c, nil
}

// argsortDesc orders indexes by descending value; equal values keep index order.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}

var _ domain.VectorStore = (*Storage)(nil)
