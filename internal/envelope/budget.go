package envelope

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Budget reports token-count analysis for an envelope's payload, used by
// the client library's opt-in chunking helper (see chunking.go) to decide
// whether a Call should be split across multiple envelopes.
type Budget struct {
	PayloadTokens int // tokens in the JSON payload
	HeaderTokens  int // estimated tokens for headers/properties/trace metadata
	TotalTokens   int // PayloadTokens + HeaderTokens

	MaxTokens       int  // budget ceiling this envelope is measured against
	NeedsSplitting  bool // true when TotalTokens exceeds MaxTokens
	SuggestedChunks int  // recommended chunk count when NeedsSplitting
}

// tokenEncoding lazily initializes and caches the tiktoken encoding used
// for all budget estimation; cl100k_base is a model-agnostic encoding
// suitable for rough sizing rather than exact per-model accounting.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func getEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoding, encodingErr
}

// CalculateBudget estimates the token footprint of env's payload and
// metadata against maxTokens.
func CalculateBudget(env *Envelope, maxTokens int) (*Budget, error) {
	enc, err := getEncoding()
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}

	payloadTokens := len(enc.Encode(string(env.Payload), nil, nil))
	headerTokens := estimateMetadataTokens(enc, env)
	total := payloadTokens + headerTokens

	b := &Budget{
		PayloadTokens: payloadTokens,
		HeaderTokens:  headerTokens,
		TotalTokens:   total,
		MaxTokens:     maxTokens,
	}
	if maxTokens > 0 && total > maxTokens {
		b.NeedsSplitting = true
		b.SuggestedChunks = (total + maxTokens - 1) / maxTokens
	}
	return b, nil
}

func estimateMetadataTokens(enc *tiktoken.Tiktoken, env *Envelope) int {
	count := len(enc.Encode(env.Source+env.Destination+env.Identifier, nil, nil))
	for k, v := range env.Headers {
		count += len(enc.Encode(k+v, nil, nil))
	}
	for k := range env.Properties {
		count += len(enc.Encode(k, nil, nil))
	}
	return count
}
