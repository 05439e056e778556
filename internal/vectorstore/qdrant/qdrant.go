package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"semsearch/internal/domain"
)

const textKey = "text"

// Storage is a Qdrant-backed vector store speaking gRPC.
// Result order among equal scores is decided by the server.
type Storage struct {
	client *qdrant.Client
	exact  bool
	hnswEf uint64
}

// Config contains connection details and the search accuracy knob.
// With Exact set, Qdrant scans every point; otherwise HNSW is used and HnswEf
// (when non-zero) trades latency for recall.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	Exact  bool
	HnswEf uint64
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant client: %w", domain.ErrStore, err)
	}
	return &Storage{client: client, exact: cfg.Exact, hnswEf: cfg.HnswEf}, nil
}

func (s *Storage) CreateCollection(ctx context.Context, spec domain.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrStore, spec.Dimension)
	}
	dist, err := toQdrantDistance(spec.Distance)
	if err != nil {
		return err
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(spec.Dimension),
			Distance: dist,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %q: %w", domain.ErrStore, spec.Name, err)
	}
	return nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: delete collection %q: %w", domain.ErrStore, name, err)
	}
	return nil
}

func (s *Storage) DescribeCollection(ctx context.Context, name string) (domain.CollectionSpec, bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return domain.CollectionSpec{}, false, fmt.Errorf("%w: collection exists %q: %w", domain.ErrStore, name, err)
	}
	if !exists {
		return domain.CollectionSpec{}, false, nil
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return domain.CollectionSpec{}, true, fmt.Errorf("%w: collection info %q: %w", domain.ErrStore, name, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	spec := domain.CollectionSpec{
		Name:      name,
		Dimension: int(params.GetSize()),
		Distance:  fromQdrantDistance(params.GetDistance()),
	}
	return spec, true, nil
}

func (s *Storage) Upsert(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	pts := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{textKey: r.Text}),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert into %q: %w", domain.ErrStore, collection, err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, collection string, vector []float32, k int) ([]domain.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrStore, k)
	}
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Params:         s.searchParams(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", domain.ErrStore, collection, err)
	}
	out := make([]domain.Match, 0, len(resp))
	for _, p := range resp {
		out = append(out, domain.Match{
			ID:    pointID(p.GetId()),
			Text:  p.GetPayload()[textKey].GetStringValue(),
			Score: float64(p.GetScore()),
		})
	}
	return out, nil
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count %q: %w", domain.ErrStore, collection, err)
	}
	return int(n), nil
}

// HasText counts points whose payload text matches exactly.
func (s *Storage) HasText(ctx context.Context, collection, text string) (bool, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(textKey, text)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("%w: count by text in %q: %w", domain.ErrStore, collection, err)
	}
	return n > 0, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) searchParams() *qdrant.SearchParams {
	if s.exact {
		return &qdrant.SearchParams{Exact: qdrant.PtrOf(true)}
	}
	if s.hnswEf > 0 {
		return &qdrant.SearchParams{HnswEf: qdrant.PtrOf(s.hnswEf)}
	}
	return nil
}

func toQdrantDistance(d domain.Distance) (qdrant.Distance, error) {
	switch d {
	case domain.Cosine, "":
		return qdrant.Distance_Cosine, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: unsupported distance %q", domain.ErrStore, d)
	}
}

func fromQdrantDistance(d qdrant.Distance) domain.Distance {
	if d == qdrant.Distance_Cosine {
		return domain.Cosine
	}
	return domain.Distance(d.String())
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch x := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return x.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", x.Num)
	}
	return ""
}

var _ domain.VectorStore = (*Storage)(nil)
