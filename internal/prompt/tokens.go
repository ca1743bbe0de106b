// Package prompt counts tokens and assembles prompts whose retrieved context fits
// a token budget.
package prompt

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"go.uber.org/zap"
)

// ReferenceModel selects the tokenizer encoding (cl100k_base).
const ReferenceModel = "gpt-4"

var loaderOnce sync.Once

// Counter counts tokens with tiktoken and degrades to ceil(len/4) when the
// encoder is unavailable or fails on an input.
type Counter struct {
	enc    *tiktoken.Tiktoken
	logger *zap.Logger

	mu     sync.Mutex
	warned map[string]bool
}

// NewCounter loads the encoding for ReferenceModel from the embedded BPE ranks.
// It never fails; an encoder that cannot be loaded is logged and approximated.
func NewCounter(logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	c := &Counter{logger: logger, warned: make(map[string]bool)}
	enc, err := tiktoken.EncodingForModel(ReferenceModel)
	if err != nil {
		c.degrade("init", err)
		return c
	}
	c.enc = enc
	return c
}

// NewApproximateCounter returns a counter that always uses ceil(len/4).
func NewApproximateCounter(logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{logger: logger, warned: make(map[string]bool)}
}

// CountTokens returns the number of tokens in text.
func (c *Counter) CountTokens(text string) (n int) {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return Approximate(text)
	}
	defer func() {
		if r := recover(); r != nil {
			c.degrade("encode", fmt.Errorf("%v", r))
			n = Approximate(text)
		}
	}()
	return len(c.enc.Encode(text, nil, nil))
}

// Exact reports whether the tiktoken encoder is in use.
func (c *Counter) Exact() bool { return c.enc != nil }

// Approximate estimates tokens as ceil(len(text)/4).
func Approximate(text string) int {
	return (len(text) + 3) / 4
}

// degrade logs the first failure of each kind.
func (c *Counter) degrade(cause string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warned[cause] {
		return
	}
	c.warned[cause] = true
	c.logger.Warn("token counting degraded to length/4 approximation",
		zap.String("cause", cause),
		zap.Error(err),
	)
}
