// Package tokens estimates how many model tokens a submission payload will
// consume. The estimate is recorded on request spans and logs; it never gates
// a submission.
package tokens

import (
	"math"
	"sort"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

// fieldOverhead approximates the separators a backend adds around each
// payload field when it builds the prompt.
const fieldOverhead = 4

// Counter counts tokens for submission payloads.
type Counter interface {
	Count(text string) int
	CountRequest(req *domain.SubmissionRequest) int
}

// Tiktoken counts with a BPE encoding. Codecs are loaded lazily.
type Tiktoken struct {
	encoding tokenizer.Encoding

	once     sync.Once
	codec    tokenizer.Codec
	fallback *Estimator
}

var _ Counter = (*Tiktoken)(nil)

// NewTiktoken creates a counter for encoding. O200kBase is used when
// encoding is empty.
func NewTiktoken(encoding tokenizer.Encoding) *Tiktoken {
	if encoding == "" {
		encoding = tokenizer.O200kBase
	}
	return &Tiktoken{encoding: encoding, fallback: NewEstimator()}
}

func (t *Tiktoken) getCodec() tokenizer.Codec {
	t.once.Do(func() {
		codec, err := tokenizer.Get(t.encoding)
		if err == nil {
			t.codec = codec
		}
	})
	return t.codec
}

// Count returns the number of tokens in text, falling back to the character
// estimator if the encoding cannot be loaded.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	codec := t.getCodec()
	if codec == nil {
		return t.fallback.Count(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return t.fallback.Count(text)
	}
	return len(ids)
}

// CountRequest sums the tokens of every payload field.
func (t *Tiktoken) CountRequest(req *domain.SubmissionRequest) int {
	return countFields(t, req)
}

// Estimator approximates token counts from character length.
type Estimator struct {
	CharsPerToken float64
}

var _ Counter = (*Estimator)(nil)

// NewEstimator creates a new character-based estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0, // Reasonable default for most models
	}
}

// Count estimates the tokens in text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.CharsPerToken))
}

// CountRequest estimates the tokens of every payload field.
func (e *Estimator) CountRequest(req *domain.SubmissionRequest) int {
	return countFields(e, req)
}

func countFields(c Counter, req *domain.SubmissionRequest) int {
	if req == nil {
		return 0
	}

	// Only prompt-bearing fields count; identifiers never reach the model.
	names := make([]string, 0, len(req.Fields))
	for name := range req.Fields {
		if name == domain.FieldUserID || name == domain.FieldResumeUserID {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		total += c.Count(req.Fields[name]) + fieldOverhead
	}
	return total
}
