package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"semsearch/internal/domain"
	"semsearch/internal/logging"
)

const probeText = "dimension probe"

// Options configures a SearchService.
type Options struct {
	Collection domain.CollectionSpec
	// Recreate drops an existing collection on Initialize instead of reusing it.
	Recreate bool
	// RejectDuplicates skips texts already stored verbatim in the collection.
	RejectDuplicates bool

	Chunker             domain.Chunker
	Summarizer          domain.Summarizer
	SummaryMaxSentences int

	Logger *log.Logger
}

// AddReport describes the outcome of AddDocuments.
type AddReport struct {
	// IDs of the inserted records, in input order.
	IDs []string
	// Blank counts empty or whitespace-only inputs that were dropped.
	Blank int
	// Duplicates counts inputs skipped by the reject policy.
	Duplicates int
}

// SearchService embeds texts and keeps them in one collection of a vector
// store. Searches may run concurrently with each other and with AddDocuments.
type SearchService struct {
	embedder domain.Embedder
	store    domain.VectorStore
	opts     Options
	log      *log.Logger

	// serialises dedup checks and upserts
	mu sync.Mutex
}

func New(embedder domain.Embedder, store domain.VectorStore, opts Options) *SearchService {
	if opts.Collection.Distance == "" {
		opts.Collection.Distance = domain.Cosine
	}
	l := opts.Logger
	if l == nil {
		l = logging.Discard()
	}
	return &SearchService{
		embedder: embedder,
		store:    store,
		opts:     opts,
		log:      l.With("collection", opts.Collection.Name),
	}
}

// Collection returns the spec the service was configured with.
func (s *SearchService) Collection() domain.CollectionSpec { return s.opts.Collection }

// Initialize checks that the embedder produces vectors of the configured
// dimension and prepares the collection. With Recreate set any existing
// collection of the same name is dropped first; otherwise a compatible one is
// reused.
func (s *SearchService) Initialize(ctx context.Context) error {
	spec := s.opts.Collection
	if spec.Name == "" {
		return fmt.Errorf("%w: collection name is empty", domain.ErrConfiguration)
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrConfiguration, spec.Dimension)
	}
	if spec.Distance != domain.Cosine {
		return fmt.Errorf("%w: unsupported distance %q", domain.ErrConfiguration, spec.Distance)
	}

	dim, err := s.embedderDimension(ctx)
	if err != nil {
		return err
	}
	if dim != spec.Dimension {
		return fmt.Errorf("%w: %w: embedder %s produces %d, collection expects %d",
			domain.ErrConfiguration, domain.ErrDimensionMismatch, s.embedder.Name(), dim, spec.Dimension)
	}

	existing, ok, err := s.store.DescribeCollection(ctx, spec.Name)
	if err != nil {
		return err
	}
	switch {
	case ok && s.opts.Recreate:
		s.log.Info("recreating collection")
		if err := s.store.DeleteCollection(ctx, spec.Name); err != nil {
			return err
		}
	case ok:
		if existing.Dimension != spec.Dimension || existing.Distance != spec.Distance {
			return fmt.Errorf("%w: existing collection %q is %d/%s, configured %d/%s",
				domain.ErrConfiguration, spec.Name, existing.Dimension, existing.Distance, spec.Dimension, spec.Distance)
		}
		s.log.Info("reusing collection", "dimension", existing.Dimension)
		return nil
	}
	if err := s.store.CreateCollection(ctx, spec); err != nil {
		return err
	}
	s.log.Info("collection ready", "dimension", spec.Dimension, "distance", spec.Distance, "embedder", s.embedder.Name())
	return nil
}

func (s *SearchService) embedderDimension(ctx context.Context) (int, error) {
	if d := s.embedder.Dimension(); d > 0 {
		return d, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{probeText})
	if err != nil {
		return 0, fmt.Errorf("%w: probe embedding: %w", domain.ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return 0, fmt.Errorf("%w: probe returned %d vectors", domain.ErrEmbedding, len(vecs))
	}
	return len(vecs[0]), nil
}

// Bootstrap learns corpus statistics from seed when the embedder supports it,
// initializes the collection and inserts seed. A reused collection that
// already holds documents is not seeded again.
func (s *SearchService) Bootstrap(ctx context.Context, seed []string, prepare bool) (AddReport, error) {
	if p, ok := s.embedder.(domain.Preparer); ok && prepare && len(seed) > 0 {
		if err := p.Prepare(seed); err != nil {
			return AddReport{}, fmt.Errorf("%w: prepare embedder: %w", domain.ErrEmbedding, err)
		}
	}
	if err := s.Initialize(ctx); err != nil {
		return AddReport{}, err
	}
	if len(seed) == 0 {
		return AddReport{}, nil
	}
	if !s.opts.Recreate {
		n, err := s.Count(ctx)
		if err != nil {
			return AddReport{}, err
		}
		if n > 0 {
			s.log.Info("collection already populated, skipping seed", "documents", n)
			return AddReport{}, nil
		}
	}
	return s.AddDocuments(ctx, seed)
}

// AddDocuments embeds texts in one embedder call and stores them under fresh
// identifiers. Blank texts are dropped; a batch with nothing but blanks is
// rejected. Either every accepted text is stored or none is.
func (s *SearchService) AddDocuments(ctx context.Context, texts []string) (AddReport, error) {
	var report AddReport
	if len(texts) == 0 {
		return report, nil
	}
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			report.Blank++
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return report, fmt.Errorf("%w: all %d documents are blank", domain.ErrInvalidInput, len(texts))
	}

	vecs, err := s.embedder.Embed(ctx, kept)
	if err != nil {
		return report, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vecs) != len(kept) {
		return report, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(vecs), len(kept))
	}
	for i, v := range vecs {
		if err := s.checkDimension(v); err != nil {
			return report, fmt.Errorf("document %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]domain.Record, 0, len(kept))
	var seen map[string]struct{}
	if s.opts.RejectDuplicates {
		seen = make(map[string]struct{}, len(kept))
	}
	for i, text := range kept {
		if seen != nil {
			dup, err := s.isDuplicate(ctx, seen, text)
			if err != nil {
				return report, err
			}
			if dup {
				report.Duplicates++
				s.log.Warn("skipping duplicate document", "text", preview(text))
				continue
			}
			seen[text] = struct{}{}
		}
		records = append(records, domain.Record{ID: uuid.NewString(), Text: text, Vector: vecs[i]})
	}
	if len(records) == 0 {
		return report, nil
	}

	if err := s.store.Upsert(ctx, s.opts.Collection.Name, records); err != nil {
		return report, storeErr(err)
	}
	report.IDs = make([]string, len(records))
	for i, r := range records {
		report.IDs[i] = r.ID
	}
	s.log.Debug("documents added", "count", len(records), "blank", report.Blank, "duplicates", report.Duplicates)
	return report, nil
}

func (s *SearchService) isDuplicate(ctx context.Context, seen map[string]struct{}, text string) (bool, error) {
	if _, ok := seen[text]; ok {
		return true, nil
	}
	found, err := s.store.HasText(ctx, s.opts.Collection.Name, text)
	if err != nil {
		return false, storeErr(err)
	}
	return found, nil
}

// Search returns up to k stored texts ordered by descending cosine similarity
// to query. An empty collection yields an empty result.
func (s *SearchService) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is blank", domain.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for the query", domain.ErrEmbedding, len(vecs))
	}
	if err := s.checkDimension(vecs[0]); err != nil {
		return nil, err
	}

	matches, err := s.store.Query(ctx, s.opts.Collection.Name, vecs[0], k)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]domain.SearchResult, len(matches))
	for i, m := range matches {
		out[i] = domain.SearchResult{ID: m.ID, Text: m.Text, Score: m.Score}
	}
	s.log.Debug("search", "k", k, "results", len(out))
	return out, nil
}

// Count returns the number of stored documents.
func (s *SearchService) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx, s.opts.Collection.Name)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// IngestFiles loads .txt files (glob patterns allowed), splits them into
// chunks, adds the chunks and returns an extractive summary of everything
// that was loaded.
func (s *SearchService) IngestFiles(ctx context.Context, paths []string) (string, error) {
	if s.opts.Chunker == nil {
		return "", fmt.Errorf("%w: no chunker configured", domain.ErrConfiguration)
	}
	var documents []domain.Document
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return "", fmt.Errorf("%w: pattern %q: %w", domain.ErrInvalidInput, p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.HasSuffix(strings.ToLower(m), ".txt") {
				s.log.Warn("skipping non-text file", "path", m)
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
			}
			documents = append(documents, domain.Document{ID: hashString(m), Path: m, Content: string(data)})
		}
	}
	if len(documents) == 0 {
		return "", fmt.Errorf("%w: no .txt documents found", domain.ErrInvalidInput)
	}

	var texts []string
	var all strings.Builder
	for _, d := range documents {
		chunks, err := s.opts.Chunker.Chunk(d)
		if err != nil {
			return "", err
		}
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
		}
		all.WriteString(d.Content)
		all.WriteString("\n")
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: documents contain no text", domain.ErrInvalidInput)
	}
	report, err := s.AddDocuments(ctx, texts)
	if err != nil {
		return "", err
	}
	s.log.Info("ingested files", "files", len(documents), "chunks", len(report.IDs))

	if s.opts.Summarizer == nil {
		return "", nil
	}
	return s.opts.Summarizer.Summarize(all.String(), s.opts.SummaryMaxSentences)
}

func (s *SearchService) checkDimension(v []float32) error {
	if len(v) != s.opts.Collection.Dimension {
		return fmt.Errorf("%w: %w: vector has %d elements, collection expects %d",
			domain.ErrConfiguration, domain.ErrDimensionMismatch, len(v), s.opts.Collection.Dimension)
	}
	return nil
}

func storeErr(err error) error {
	if errors.Is(err, domain.ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStore, err)
}

func preview(text string) string {
	const n = 60
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
