// Package tokenizer counts, encodes and decodes message tokens using a tiktoken-go
// codec, standing in for the model-specific subword tokenizer the engine
// itself uses to judge context length.
package tokenizer

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Codec is the subset of tokenizer.Codec this package depends on, narrowed
// so tests can supply a fake without touching the real tiktoken tables.
type Codec interface {
	GetName() string
	Encode(text string) ([]uint, []string, error)
	Decode(tokens []uint) (string, error)
}

// Adapter counts and decodes tokens for one model's codec.
type Adapter struct {
	codec Codec
}

// NewAdapter resolves modelName to a tiktoken codec, falling back to
// cl100k_base for model names tiktoken-go doesn't recognize directly — the
// engine's own vocabulary is close enough for budget accounting purposes.
func NewAdapter(modelName string) (*Adapter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(modelName))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: no codec available for %q: %w", modelName, err)
		}
	}
	return &Adapter{codec: codec}, nil
}

// NewAdapterWithCodec builds an Adapter around an already-resolved Codec,
// used by tests to inject a deterministic stand-in.
func NewAdapterWithCodec(codec Codec) *Adapter {
	return &Adapter{codec: codec}
}

// Count returns the number of tokens text encodes to.
func (a *Adapter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	toks, _, err := a.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("tokenizer: encode failed: %w", err)
	}
	return len(toks), nil
}

// Encode returns the raw token IDs for text.
func (a *Adapter) Encode(text string) ([]uint, error) {
	toks, _, err := a.codec.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: encode failed: %w", err)
	}
	return toks, nil
}

// Decode renders token IDs back to text.
func (a *Adapter) Decode(tokens []uint) (string, error) {
	text, err := a.codec.Decode(tokens)
	if err != nil {
		return "", fmt.Errorf("tokenizer: decode failed: %w", err)
	}
	return text, nil
}
