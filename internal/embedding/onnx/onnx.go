// Package onnx runs a sentence-transformer exported to ONNX (all-MiniLM-L6-v2,
// mxbai-embed-large-v1, ...) locally. Sentence vectors are the attention-masked
// mean of last_hidden_state, L2-normalised.
package onnx

import (
	"context"
	"fmt"
	"slices"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"semsearch/internal/embedding"
)

const (
	inputIDs      = "input_ids"
	attentionMask = "attention_mask"
	tokenTypeIDs  = "token_type_ids"
	hiddenState   = "last_hidden_state"
)

// Config locates the model files and the onnxruntime shared library.
type Config struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	MaxLength     int
	// Dimension is used when the model leaves the hidden size symbolic.
	Dimension int
}

type Embedder struct {
	session    *ort.DynamicAdvancedSession
	tk         *tokenizers.Tokenizer
	inputNames []string
	maxLength  int
	dim        int
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 256
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	var inputNames []string
	for _, in := range inputs {
		switch in.Name {
		case inputIDs, attentionMask, tokenTypeIDs:
			inputNames = append(inputNames, in.Name)
		default:
			return nil, fmt.Errorf("unsupported model input %q", in.Name)
		}
	}
	if !slices.Contains(inputNames, inputIDs) {
		return nil, fmt.Errorf("model has no %s input", inputIDs)
	}

	out := -1
	for i, o := range outputs {
		if o.Name == hiddenState {
			out = i
			break
		}
	}
	if out < 0 {
		if len(outputs) == 0 {
			return nil, fmt.Errorf("model has no outputs")
		}
		out = 0
	}
	dim := cfg.Dimension
	if shape := outputs[out].Dimensions; len(shape) == 3 && shape[2] > 0 {
		dim = int(shape[2])
	}
	if dim <= 0 {
		return nil, fmt.Errorf("cannot determine hidden size of %s; set dimension", cfg.ModelPath)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputs[out].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	tk, err := tokenizers.FromFile(cfg.TokenizerPath)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	return &Embedder{
		session:    session,
		tk:         tk,
		inputNames: inputNames,
		maxLength:  cfg.MaxLength,
		dim:        dim,
	}, nil
}

func (e *Embedder) Name() string   { return "onnx" }
func (e *Embedder) Dimension() int { return e.dim }

// Embed runs the whole batch through the model in one session call,
// padding every sequence to the longest one.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded := make([][]uint32, len(texts))
	seqLen := 1
	for i, text := range texts {
		ids, _ := e.tk.Encode(text, true)
		if len(ids) > e.maxLength {
			ids = ids[:e.maxLength]
		}
		encoded[i] = ids
		seqLen = max(seqLen, len(ids))
	}

	batch := int64(len(texts))
	ids := make([]int64, len(texts)*seqLen)
	mask := make([]int64, len(texts)*seqLen)
	types := make([]int64, len(texts)*seqLen)
	for i, row := range encoded {
		for j, id := range row {
			ids[i*seqLen+j] = int64(id)
			mask[i*seqLen+j] = 1
		}
	}

	shape := ort.NewShape(batch, int64(seqLen))
	feeds := map[string][]int64{inputIDs: ids, attentionMask: mask, tokenTypeIDs: types}
	inputs := make([]ort.Value, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			if v != nil {
				_ = v.Destroy()
			}
		}
	}()
	for i, name := range e.inputNames {
		t, err := ort.NewTensor(shape, feeds[name])
		if err != nil {
			return nil, fmt.Errorf("failed to create tensor for %s: %w", name, err)
		}
		inputs[i] = t
	}

	outputs := []ort.Value{nil}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unsupported output type %T", outputs[0])
	}
	data := hidden.GetData()
	if got := hidden.GetShape(); len(got) != 3 || got[2] != int64(e.dim) {
		return nil, fmt.Errorf("unexpected output shape %v", got)
	}

	stride := seqLen * e.dim
	vecs := make([][]float32, len(texts))
	for i := range texts {
		v, err := embedding.MeanPool(data[i*stride:(i+1)*stride], mask[i*seqLen:(i+1)*seqLen], e.dim)
		if err != nil {
			return nil, err
		}
		vecs[i] = embedding.Normalize(v)
	}
	return vecs, nil
}

func (e *Embedder) Close() error {
	if e.tk != nil {
		e.tk.Close()
		e.tk = nil
	}
	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		return err
	}
	return nil
}
