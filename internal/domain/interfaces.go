package domain

import "context"

// Distance names the similarity metric a collection is configured with.
type Distance string

// Cosine is the only metric the search pipeline uses.
const Cosine Distance = "cosine"

// Document represents a single text file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a part of a document that is indexed as its own record.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// SearchResult is a stored text ranked against a query.
type SearchResult struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// CollectionSpec describes a vector collection.
type CollectionSpec struct {
	Name      string
	Dimension int
	Distance  Distance
}

// Record is a single stored document: identifier, payload text and vector.
type Record struct {
	ID     string
	Text   string
	Vector []float32
}

// Match is a record returned by a similarity query.
type Match struct {
	ID    string
	Text  string
	Score float64
}

// Embedder converts free text into fixed-length vectors. Output order follows
// input order and every vector has Dimension() elements. Dimension may return 0
// when the size is only known after the first call.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Preparer is implemented by embedders that learn corpus statistics before use.
type Preparer interface {
	Prepare(corpus []string) error
}

// VectorStore persists records and supports similarity search over a named collection.
type VectorStore interface {
	CreateCollection(ctx context.Context, spec CollectionSpec) error
	DeleteCollection(ctx context.Context, name string) error
	// DescribeCollection reports the collection configuration and whether it exists.
	DescribeCollection(ctx context.Context, name string) (CollectionSpec, bool, error)
	Upsert(ctx context.Context, collection string, records []Record) error
	// Query returns up to k matches ordered by descending similarity.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context, collection string) (int, error)
	// HasText reports whether a record with exactly this text is stored.
	HasText(ctx context.Context, collection, text string) (bool, error)
	Close() error
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
