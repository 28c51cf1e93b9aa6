// Package tokenizer adapts a BPE encoding to the decoder's tokenization
// collaborator contract: text to token ids and back, plus the vocabulary
// size used to clamp top-k.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the GPT-2 style BPE used for abductive prompts.
const DefaultEncoding = "r50k_base"

// vocabSizes records the token count of each supported encoding.
var vocabSizes = map[string]int{
	"r50k_base":   50257,
	"p50k_base":   50281,
	"cl100k_base": 100277,
}

type Tokenizer struct {
	enc       *tiktoken.Tiktoken
	name      string
	vocabSize int
}

// New loads the named BPE encoding. An empty name selects DefaultEncoding.
func New(name string) (*Tokenizer, error) {
	if name == "" {
		name = DefaultEncoding
	}
	size, ok := vocabSizes[name]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", name, err)
	}
	return &Tokenizer{enc: enc, name: name, vocabSize: size}, nil
}

func (t *Tokenizer) Name() string { return t.name }

// VocabSize reports the number of token ids in the encoding, including
// special tokens.
func (t *Tokenizer) VocabSize() int { return t.vocabSize }

// Encode converts text to token ids. Special token text is treated as
// plain input.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
