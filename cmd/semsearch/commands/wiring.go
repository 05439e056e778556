package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"semsearch/internal/chunker"
	"semsearch/internal/config"
	"semsearch/internal/domain"
	"semsearch/internal/embedding"
	"semsearch/internal/embedding/onnx"
	"semsearch/internal/embedding/openai"
	"semsearch/internal/embedding/tfidf"
	"semsearch/internal/logging"
	"semsearch/internal/service"
	"semsearch/internal/summarizer"
	"semsearch/internal/vectorstore/memory"
	"semsearch/internal/vectorstore/qdrant"
	"semsearch/internal/vectorstore/sqlite"
)

// app is a fully wired search service plus the resources it owns.
type app struct {
	cfg     *config.AppConfig
	svc     *service.SearchService
	log     *log.Logger
	closers []io.Closer
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

// newApp loads the config, assembles embedder and store, initializes the
// collection and inserts the seed documents. logToFile forces file logging
// even when log.file is unset, so the TUI keeps the terminal to itself.
func newApp(ctx context.Context, opts *rootOptions, logToFile bool) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logFile := cfg.Log.File
	if logToFile && logFile == "" {
		if logFile, err = defaultLogPath(); err != nil {
			return nil, err
		}
	}
	logger, logCloser, err := logging.Open(logFile, level)
	if err != nil {
		return nil, fmt.Errorf("%w: logger: %w", domain.ErrConfiguration, err)
	}
	a := &app{cfg: cfg, log: logger, closers: []io.Closer{logCloser}}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if c, ok := emb.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	if cfg.Embedder.Cache {
		emb = embedding.NewCached(emb)
	}

	store, err := buildStore(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, store)

	a.svc = service.New(emb, store, service.Options{
		Collection: domain.CollectionSpec{
			Name:      cfg.Collection.Name,
			Dimension: cfg.Collection.Dimension,
			Distance:  domain.Distance(cfg.Collection.Distance),
		},
		Recreate:            cfg.Collection.Recreate,
		RejectDuplicates:    cfg.Duplicates == config.DuplicatesReject,
		Chunker:             chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences),
		Summarizer:          summarizer.NewFrequencySummarizer(),
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		Logger:              logger,
	})

	report, err := a.svc.Bootstrap(ctx, cfg.SeedDocuments, cfg.Embedder.TFIDF.PrepareOnSeed)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info("ready",
		"embedder", emb.Name(),
		"store", cfg.VectorStore.Type,
		"seeded", len(report.IDs),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(cfg.Collection.Dimension), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Dimensions: oc.Dimensions,
			BatchSize:  oc.BatchSize,
			Timeout:    cfg.OpenAITimeout(),
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: openai embedder: %w", domain.ErrConfiguration, err)
		}
		return client, nil
	case "onnx":
		xc := cfg.Embedder.ONNX
		emb, err := onnx.NewEmbedder(onnx.Config{
			ModelPath:     xc.ModelPath,
			TokenizerPath: xc.TokenizerPath,
			LibraryPath:   xc.LibraryPath,
			MaxLength:     xc.MaxLength,
			Dimension:     cfg.Collection.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: onnx embedder: %w", domain.ErrConfiguration, err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, cfg.Embedder.Type)
	}
}

func buildStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		st, err := qdrant.NewStorage(qdrant.Config{
			Host:   qc.Host,
			Port:   qc.Port,
			APIKey: qc.APIKey,
			UseTLS: qc.UseTLS,
			Exact:  qc.Exact,
			HnswEf: qc.HnswEf,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := sqlite.NewStorage(cfg.VectorStore.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, cfg.VectorStore.Type)
	}
}

func defaultLogPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: locate log directory: %w", domain.ErrConfiguration, err)
	}
	return filepath.Join(dir, "semsearch", "semsearch.log"), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
