package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"semsearch/internal/chunker"
	"semsearch/internal/domain"
	"semsearch/internal/embedding/tfidf"
	"semsearch/internal/summarizer"
	"semsearch/internal/vectorstore/memory"
)

// fixtureEmbedder maps known texts to hand-made vectors whose axes are
// roughly (german, bread, france, italy).
type fixtureEmbedder struct {
	dim     int
	vectors map[string][]float32
	calls   atomic.Int32
}

func newFixtureEmbedder() *fixtureEmbedder {
	return &fixtureEmbedder{dim: 4, vectors: map[string][]float32{
		"Who is German and likes bread?": {0.7, 0.7, 0, 0},
		"Everyone in Germany.":           {1, 0, 0, 0},
		"French people love baguettes.":  {0, 0.6, 0.8, 0},
		"Italy is famous for pizza.":     {0, 0.3, 0, 0.95},
		"Who likes bread in Europe?":     {0.8, 0.5, 0.1, 0.05},
		"dimension probe":                {0, 0, 0, 1},
		"nothing at all":                 {0, 0, 0, 0},
	}}
}

func (f *fixtureEmbedder) Name() string   { return "fixture" }
func (f *fixtureEmbedder) Dimension() int { return f.dim }

func (f *fixtureEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no fixture vector for %q", t)
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Name() string { return "mock" }

func (m *mockEmbedder) Dimension() int { return m.Called().Int(0) }

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

var seedTexts = []string{
	"Who is German and likes bread?",
	"Everyone in Germany.",
	"French people love baguettes.",
	"Italy is famous for pizza.",
}

func collection(dim int) domain.CollectionSpec {
	return domain.CollectionSpec{Name: "text_search", Dimension: dim, Distance: domain.Cosine}
}

func newService(t *testing.T, emb domain.Embedder, opts Options) (*SearchService, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	if opts.Collection.Name == "" {
		opts.Collection = collection(4)
	}
	svc := New(emb, store, opts)
	require.NoError(t, svc.Initialize(context.Background()))
	return svc, store
}

func TestSearch_GermanBreadScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{Recreate: true})
	_, err := svc.AddDocuments(ctx, seedTexts)
	require.NoError(t, err)

	res, err := svc.Search(ctx, "Who likes bread in Europe?", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "Who is German and likes bread?", res[0].Text)
	assert.Equal(t, "Everyone in Germany.", res[1].Text)
	assert.Equal(t, "French people love baguettes.", res[2].Text)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	for _, r := range res {
		assert.GreaterOrEqual(t, r.Score, -1.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearch_EuropeBreadQueryFindsGermany(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.AddDocuments(ctx, []string{
		"Everyone in Germany.",
		"French people love baguettes.",
		"Italy is famous for pizza.",
	})
	require.NoError(t, err)

	res, err := svc.Search(ctx, "Who likes bread in Europe?", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Everyone in Germany.", res[0].Text)
	assert.InDelta(t, 0.8421, res[0].Score, 1e-3)
}

func TestSearch_SelfRetrieval(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.AddDocuments(ctx, seedTexts)
	require.NoError(t, err)

	for _, text := range seedTexts {
		res, err := svc.Search(ctx, text, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, text, res[0].Text)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	res, err := svc.Search(context.Background(), "Who likes bread in Europe?", 5)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestSearch_LengthIsMinOfKAndCount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.AddDocuments(ctx, seedTexts[:3])
	require.NoError(t, err)

	for k, want := range map[int]int{1: 1, 2: 2, 3: 3, 10: 3} {
		res, err := svc.Search(ctx, "Who likes bread in Europe?", k)
		require.NoError(t, err)
		assert.Len(t, res, want, "k=%d", k)
	}
}

func TestSearch_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.AddDocuments(ctx, seedTexts)
	require.NoError(t, err)

	first, err := svc.Search(ctx, "Who likes bread in Europe?", 4)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := svc.Search(ctx, "Who likes bread in Europe?", 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearch_InsertionOrderIndependent(t *testing.T) {
	ctx := context.Background()
	forward, _ := newService(t, newFixtureEmbedder(), Options{})
	backward, _ := newService(t, newFixtureEmbedder(), Options{})

	_, err := forward.AddDocuments(ctx, seedTexts)
	require.NoError(t, err)
	for i := len(seedTexts) - 1; i >= 0; i-- {
		_, err := backward.AddDocuments(ctx, []string{seedTexts[i]})
		require.NoError(t, err)
	}

	a, err := forward.Search(ctx, "Who likes bread in Europe?", 4)
	require.NoError(t, err)
	b, err := backward.Search(ctx, "Who likes bread in Europe?", 4)
	require.NoError(t, err)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Text, b[i].Text)
		assert.InDelta(t, a[i].Score, b[i].Score, 1e-9)
	}
}

func TestSearch_ZeroVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.AddDocuments(ctx, []string{"nothing at all", "Everyone in Germany."})
	require.NoError(t, err)

	res, err := svc.Search(ctx, "Everyone in Germany.", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "nothing at all", res[1].Text)
	assert.Zero(t, res[1].Score)
}

func TestSearch_InvalidInput(t *testing.T) {
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	ctx := context.Background()

	_, err := svc.Search(ctx, "   ", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Search(ctx, "Everyone in Germany.", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Search(ctx, "Everyone in Germany.", -2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.Search(context.Background(), "unknown text", 3)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestAddDocuments_EmptyIsNoop(t *testing.T) {
	emb := newFixtureEmbedder()
	svc, _ := newService(t, emb, Options{})
	before := emb.calls.Load()

	report, err := svc.AddDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, AddReport{}, report)
	assert.Equal(t, before, emb.calls.Load())
}

func TestAddDocuments_BlankHandling(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})

	_, err := svc.AddDocuments(ctx, []string{"", "  ", "\n\t"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	report, err := svc.AddDocuments(ctx, []string{" ", "Everyone in Germany.", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Blank)
	assert.Len(t, report.IDs, 1)
}

func TestAddDocuments_OneEmbedCallPerBatch(t *testing.T) {
	emb := newFixtureEmbedder()
	svc, _ := newService(t, emb, Options{})
	before := emb.calls.Load()

	_, err := svc.AddDocuments(context.Background(), seedTexts)
	require.NoError(t, err)
	assert.Equal(t, before+1, emb.calls.Load())
}

func TestAddDocuments_UniqueUUIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})

	report, err := svc.AddDocuments(ctx, []string{"Everyone in Germany.", "Everyone in Germany.", "Italy is famous for pizza."})
	require.NoError(t, err)
	require.Len(t, report.IDs, 3)

	seen := map[string]bool{}
	for _, id := range report.IDs {
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAddDocuments_RejectDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{RejectDuplicates: true})

	report, err := svc.AddDocuments(ctx, []string{"Everyone in Germany.", "Everyone in Germany.", "Italy is famous for pizza."})
	require.NoError(t, err)
	assert.Len(t, report.IDs, 2)
	assert.Equal(t, 1, report.Duplicates)

	report, err = svc.AddDocuments(ctx, []string{"Italy is famous for pizza."})
	require.NoError(t, err)
	assert.Empty(t, report.IDs)
	assert.Equal(t, 1, report.Duplicates)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAddDocuments_EmbeddingFailureInsertsNothing(t *testing.T) {
	ctx := context.Background()
	emb := &mockEmbedder{}
	emb.On("Dimension").Return(4)
	emb.On("Embed", mock.Anything, []string{"a", "b"}).Return(nil, errors.New("model unavailable"))

	svc, _ := newService(t, emb, Options{})
	_, err := svc.AddDocuments(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	emb.AssertExpectations(t)
}

func TestAddDocuments_WrongDimensionInsertsNothing(t *testing.T) {
	ctx := context.Background()
	emb := &mockEmbedder{}
	emb.On("Dimension").Return(4)
	emb.On("Embed", mock.Anything, []string{"a", "b"}).Return([][]float32{{1, 0, 0, 0}, {1, 0, 0}}, nil)

	svc, _ := newService(t, emb, Options{})
	_, err := svc.AddDocuments(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddDocuments_StoreFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, newFixtureEmbedder(), Options{})
	require.NoError(t, store.DeleteCollection(ctx, "text_search"))

	_, err := svc.AddDocuments(ctx, []string{"Everyone in Germany."})
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestInitialize_DimensionMismatch(t *testing.T) {
	svc := New(newFixtureEmbedder(), memory.NewStorage(), Options{Collection: collection(384)})
	err := svc.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestInitialize_RejectsNonCosine(t *testing.T) {
	spec := collection(4)
	spec.Distance = "euclid"
	err := New(newFixtureEmbedder(), memory.NewStorage(), Options{Collection: spec}).Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestInitialize_ProbesUnknownDimension(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Dimension").Return(0)
	emb.On("Embed", mock.Anything, []string{"dimension probe"}).Return([][]float32{{0, 0, 1}}, nil).Once()

	err := New(emb, memory.NewStorage(), Options{Collection: collection(3)}).Initialize(context.Background())
	require.NoError(t, err)
	emb.AssertExpectations(t)

	emb = &mockEmbedder{}
	emb.On("Dimension").Return(0)
	emb.On("Embed", mock.Anything, []string{"dimension probe"}).Return([][]float32{{0, 0, 1}}, nil).Once()
	err = New(emb, memory.NewStorage(), Options{Collection: collection(4)}).Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestInitialize_RecreateDropsRecords(t *testing.T) {
	ctx := context.Background()
	emb := newFixtureEmbedder()
	store := memory.NewStorage()

	first := New(emb, store, Options{Collection: collection(4), Recreate: true})
	require.NoError(t, first.Initialize(ctx))
	_, err := first.AddDocuments(ctx, seedTexts)
	require.NoError(t, err)

	second := New(emb, store, Options{Collection: collection(4), Recreate: true})
	require.NoError(t, second.Initialize(ctx))
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInitialize_ReuseKeepsRecords(t *testing.T) {
	ctx := context.Background()
	emb := newFixtureEmbedder()
	store := memory.NewStorage()

	first := New(emb, store, Options{Collection: collection(4)})
	require.NoError(t, first.Initialize(ctx))
	_, err := first.AddDocuments(ctx, seedTexts)
	require.NoError(t, err)

	second := New(emb, store, Options{Collection: collection(4)})
	require.NoError(t, second.Initialize(ctx))
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seedTexts), n)

	require.NoError(t, store.DeleteCollection(ctx, "text_search"))
	require.NoError(t, store.CreateCollection(ctx, collection(8)))
	err = New(emb, store, Options{Collection: collection(4)}).Initialize(ctx)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestBootstrap_TFIDF(t *testing.T) {
	ctx := context.Background()
	emb := tfidf.NewEmbedder(tfidf.DefaultDimension)
	svc := New(emb, memory.NewStorage(), Options{Collection: collection(tfidf.DefaultDimension), Recreate: true})

	report, err := svc.Bootstrap(ctx, seedTexts, true)
	require.NoError(t, err)
	assert.Len(t, report.IDs, len(seedTexts))

	res, err := svc.Search(ctx, "pizza from Italy", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Italy is famous for pizza.", res[0].Text)
}

func TestBootstrap_ReusedCollectionIsNotReseeded(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	opts := Options{Collection: collection(4)}

	first := New(newFixtureEmbedder(), store, opts)
	report, err := first.Bootstrap(ctx, seedTexts, false)
	require.NoError(t, err)
	assert.Len(t, report.IDs, len(seedTexts))

	second := New(newFixtureEmbedder(), store, opts)
	report, err = second.Bootstrap(ctx, seedTexts, false)
	require.NoError(t, err)
	assert.Empty(t, report.IDs)

	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seedTexts), n)
}

func TestSearch_TFIDFStopwordOnlyDocumentFindsItself(t *testing.T) {
	ctx := context.Background()
	emb := tfidf.NewEmbedder(tfidf.DefaultDimension)
	svc := New(emb, memory.NewStorage(), Options{Collection: collection(tfidf.DefaultDimension), Recreate: true})
	_, err := svc.Bootstrap(ctx, seedTexts, true)
	require.NoError(t, err)
	_, err = svc.AddDocuments(ctx, []string{"It is."})
	require.NoError(t, err)

	res, err := svc.Search(ctx, "It is.", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "It is.", res[0].Text)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestConcurrentSearchAndAdd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newFixtureEmbedder(), Options{})
	_, err := svc.AddDocuments(ctx, seedTexts[:2])
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.AddDocuments(ctx, seedTexts[2:])
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			res, err := svc.Search(ctx, "Who likes bread in Europe?", 3)
			assert.NoError(t, err)
			for _, r := range res {
				assert.NotEmpty(t, r.ID)
				assert.NotEmpty(t, r.Text)
			}
		}()
	}
	wg.Wait()

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2+8*2, n)
}

func TestIngestFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Everyone in Germany. Who is German and likes bread?"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("ignored"), 0o644))

	svc, _ := newService(t, newFixtureEmbedder(), Options{
		Chunker:             chunker.NewSentenceChunker(1, 0),
		Summarizer:          summarizer.NewFrequencySummarizer(),
		SummaryMaxSentences: 1,
	})
	summary, err := svc.IngestFiles(ctx, []string{filepath.Join(dir, "*")})
	require.NoError(t, err)
	assert.NotEmpty(t, summary)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.IngestFiles(ctx, []string{filepath.Join(dir, "*.md")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestFiles_BadPattern(t *testing.T) {
	svc, _ := newService(t, newFixtureEmbedder(), Options{Chunker: chunker.NewSentenceChunker(1, 0)})
	_, err := svc.IngestFiles(context.Background(), []string{"notes[.txt"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}
