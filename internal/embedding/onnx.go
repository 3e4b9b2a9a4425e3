//go:build cgo
// +build cgo

package embedding

import (
	"fmt"
	"sync"

	"github.com/hyperjump/kioku/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// onnxSession owns an ONNX Runtime session and its pre-allocated tensors.
// It requires CGO and the onnxruntime shared library.
type onnxSession struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func loadONNXSession(cfg LocalConfig) (session, error) {
	ortInitOnce.Do(func() { ortInitErr = ort.InitializeEnvironment() })
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", ortInitErr)
	}
	if cfg.Dimensions <= 0 {
		return nil, notConfigured(SourceTransformers, "model dimensions")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	s := &onnxSession{dimensions: cfg.Dimensions, maxTokens: maxTokens, tokenizer: &SimpleTokenizer{}}
	ids, mask, types := s.tokenizer.Tokenize("", maxTokens)
	shape := ort.NewShape(1, int64(maxTokens))

	var err error
	if s.inputIDs, err = ort.NewTensor(shape, ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if s.attentionMask, err = ort.NewTensor(shape, mask); err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if s.tokenTypeIDs, err = ort.NewTensor(shape, types); err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if s.output, err = ort.NewTensor(ort.NewShape(1, int64(cfg.Dimensions)), make([]float32, cfg.Dimensions)); err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{s.inputIDs, s.attentionMask, s.tokenTypeIDs},
		[]ort.ArbitraryTensor{s.output},
		nil,
	)
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return s, nil
}

func (s *onnxSession) Embed(text string) ([]float32, error) {
	ids, mask, types := s.tokenizer.Tokenize(text, s.maxTokens)
	copy(s.inputIDs.GetData(), ids)
	copy(s.attentionMask.GetData(), mask)
	copy(s.tokenTypeIDs.GetData(), types)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, s.dimensions)
	copy(embedding, s.output.GetData()[:s.dimensions])
	utils.NormalizeL2(embedding)
	return embedding, nil
}

func (s *onnxSession) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	s.destroy()
	return err
}

func (s *onnxSession) destroy() {
	if s.inputIDs != nil {
		_ = s.inputIDs.Destroy()
		s.inputIDs = nil
	}
	if s.attentionMask != nil {
		_ = s.attentionMask.Destroy()
		s.attentionMask = nil
	}
	if s.tokenTypeIDs != nil {
		_ = s.tokenTypeIDs.Destroy()
		s.tokenTypeIDs = nil
	}
	if s.output != nil {
		_ = s.output.Destroy()
		s.output = nil
	}
}
