//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/inqdoc/pkg/utils"
)

// Sentence-transformers exports name their token-level output last_hidden_state.
const onnxOutputName = "last_hidden_state"

// ONNXEmbedder runs a local sentence-transformers model through ONNX Runtime and
// mean-pools the token states under the attention mask. Needs CGO and the
// onnxruntime shared library. A vocab.txt next to the model enables WordPiece
// tokenization; without it words are hashed into the id space.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int

	ids, mask, types *ort.Tensor[int64]
	hidden           *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	if dimensions <= 0 || maxTokens <= 0 {
		return nil, errors.New("onnx: dimensions and max tokens must be positive")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	var tokenizer Tokenizer = NewHashTokenizer()
	vocab := filepath.Join(filepath.Dir(modelPath), "vocab.txt")
	if _, err := os.Stat(vocab); err == nil {
		wp, err := LoadWordPieceTokenizer(vocab)
		if err != nil {
			return nil, fmt.Errorf("onnx: %w", err)
		}
		tokenizer = wp
	}

	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	e := &ONNXEmbedder{tokenizer: tokenizer, dimensions: dimensions, maxTokens: maxTokens}
	if err := e.allocate(modelPath); err != nil {
		e.destroy()
		return nil, err
	}
	return e, nil
}

func (e *ONNXEmbedder) allocate(modelPath string) error {
	seq := ort.NewShape(1, int64(e.maxTokens))
	var err error
	if e.ids, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	if e.mask, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	if e.types, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.maxTokens), int64(e.dimensions))); err != nil {
		return fmt.Errorf("onnx: output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{onnxOutputName},
		[]ort.ArbitraryTensor{e.ids, e.mask, e.types},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		return fmt.Errorf("onnx: create session: %w", err)
	}
	return nil
}

// Embed runs one inference. Calls share the tensors and are serialized.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc := e.tokenizer.Encode(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("onnx: embedder is closed")
	}
	copy(e.ids.GetData(), enc.InputIDs)
	copy(e.mask.GetData(), enc.AttentionMask)
	copy(e.types.GetData(), enc.TokenTypeIDs)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	vec := meanPool(e.hidden.GetData(), enc.AttentionMask, e.dimensions)
	utils.NormalizeL2(vec)
	return vec, nil
}

// meanPool averages the rows of hidden (tokens x dims) whose mask is set.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[tok*dims : (tok+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}

// EmbedBatch embeds texts one at a time.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close releases the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroy()
}

func (e *ONNXEmbedder) destroy() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.ids != nil {
		_ = e.ids.Destroy()
	}
	if e.mask != nil {
		_ = e.mask.Destroy()
	}
	if e.types != nil {
		_ = e.types.Destroy()
	}
	if e.hidden != nil {
		_ = e.hidden.Destroy()
	}
	e.ids, e.mask, e.types, e.hidden = nil, nil, nil, nil
	return err
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

func initRuntime() error {
	runtimeOnce.Do(func() {
		if !ort.IsInitialized() {
			runtimeErr = ort.InitializeEnvironment()
		}
	})
	return runtimeErr
}
