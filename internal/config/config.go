package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"semsearch/internal/domain"
)

// Duplicate policies for AddDocuments.
const (
	DuplicatesAllow  = "allow"
	DuplicatesReject = "reject"
)

// CollectionConfig describes the vector collection the service owns.
type CollectionConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Dimension int    `yaml:"dimension" validate:"min=1"`
	Distance  string `yaml:"distance" validate:"oneof=cosine"`
	// Recreate drops an existing collection of the same name on startup.
	Recreate bool `yaml:"recreate"`
}

// TFIDFEmbedderConfig holds configuration for the local TF-IDF embedder.
type TFIDFEmbedderConfig struct {
	// PrepareOnSeed learns IDF weights from the seed documents.
	PrepareOnSeed bool `yaml:"prepare_on_seed"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions" validate:"min=0"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"min=0"`
	BatchSize   int    `yaml:"batch_size" validate:"min=0"`
	MaxRetries  int    `yaml:"max_retries" validate:"min=0"`
}

// ONNXEmbedderConfig locates a sentence-transformer exported to ONNX.
type ONNXEmbedderConfig struct {
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`
	MaxLength     int    `yaml:"max_length" validate:"min=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type" validate:"oneof=tfidf openai onnx"`
	Cache  bool                 `yaml:"cache"`
	TFIDF  TFIDFEmbedderConfig  `yaml:"tfidf"`
	OpenAI OpenAIEmbedderConfig `yaml:"openai"`
	ONNX   ONNXEmbedderConfig   `yaml:"onnx"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" validate:"oneof=sentence"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" validate:"min=1"`
	OverlapSentences  int    `yaml:"overlap_sentences" validate:"min=0,ltfield=SentencesPerChunk"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string       `yaml:"type" validate:"oneof=memory qdrant sqlite"`
	Qdrant QdrantConfig `yaml:"qdrant"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port" validate:"min=0,max=65535"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
	// Exact disables HNSW and scans every point.
	Exact  bool   `yaml:"exact"`
	HnswEf uint64 `yaml:"hnsw_ef"`
}

// SQLiteConfig points at the database file; ":memory:" keeps it in RAM.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	TopK int `yaml:"top_k" validate:"min=1"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" validate:"oneof=frequency"`
	MaxSentences int    `yaml:"max_sentences" validate:"min=1"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// File receives log output when set; the TUI always logs to a file.
	File string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Collection    CollectionConfig  `yaml:"collection"`
	Embedder      EmbedderConfig    `yaml:"embedder"`
	VectorStore   VectorStoreConfig `yaml:"vector_store"`
	Search        SearchConfig      `yaml:"search"`
	Duplicates    string            `yaml:"duplicates" validate:"oneof=allow reject"`
	Chunker       ChunkerConfig     `yaml:"chunker"`
	Summarizer    SummarizerConfig  `yaml:"summarizer"`
	Log           LogConfig         `yaml:"log"`
	SeedDocuments []string          `yaml:"seed_documents"`
}

// OpenAITimeout converts the configured seconds into a duration.
func (c *AppConfig) OpenAITimeout() time.Duration {
	return time.Duration(c.Embedder.OpenAI.TimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// ${VAR} references are expanded from the environment before parsing, and
// fields missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %w", domain.ErrConfiguration, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./semsearch.yaml first, then ~/.config/semsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/semsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "semsearch.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and backend-specific requirements.
// Every failure wraps domain.ErrConfiguration.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	if cfg.Embedder.Type == "onnx" && (cfg.Embedder.ONNX.ModelPath == "" || cfg.Embedder.ONNX.TokenizerPath == "") {
		return fmt.Errorf("%w: onnx embedder needs model_path and tokenizer_path", domain.ErrConfiguration)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "semsearch", "config.yaml"), nil
}

// Default returns the built-in configuration: in-memory store, TF-IDF
// embedder, 384-dimensional cosine collection and four seed documents.
func Default() *AppConfig {
	return &AppConfig{
		Collection: CollectionConfig{Name: "text_search", Dimension: 384, Distance: string(domain.Cosine), Recreate: true},
		Embedder: EmbedderConfig{
			Type:  "tfidf",
			TFIDF: TFIDFEmbedderConfig{PrepareOnSeed: true},
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:     "https://api.openai.com/v1",
				APIKeyEnv:   "OPENAI_API_KEY",
				Model:       "text-embedding-3-small",
				TimeoutSecs: 30,
				BatchSize:   32,
				MaxRetries:  5,
			},
			ONNX: ONNXEmbedderConfig{MaxLength: 256},
		},
		VectorStore: VectorStoreConfig{
			Type:   "memory",
			Qdrant: QdrantConfig{Host: "localhost", Port: 6334, Exact: true},
			SQLite: SQLiteConfig{Path: "semsearch.db"},
		},
		Search:     SearchConfig{TopK: 5},
		Duplicates: DuplicatesAllow,
		Chunker:    ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Log:        LogConfig{Level: "info"},
		SeedDocuments: []string{
			"Who is German and likes bread?",
			"Everyone in Germany.",
			"French people love baguettes.",
			"Italy is famous for pizza.",
		},
	}
}
