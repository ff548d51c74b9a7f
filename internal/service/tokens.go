package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cloo-solutions/docsage/internal/logger"
)

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter assumes roughly four characters per token.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	return EstimateTokens(text)
}

// EstimateTokens returns ceil(characters / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding used by the given chat model,
// falling back to cl100k_base for models tiktoken does not know.
// BPE ranks are fetched over the network on first use unless
// TIKTOKEN_CACHE_DIR points at a directory that already holds them.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns the counter named by kind ("heuristic" or "tiktoken").
// A tokenizer that cannot be loaded, for example on an offline host without
// a BPE cache, degrades to the heuristic counter.
func NewTokenCounter(kind, model string, log *logger.Logger) (TokenCounter, error) {
	switch kind {
	case "", "heuristic":
		return HeuristicCounter{}, nil
	case "tiktoken":
		counter, err := NewTiktokenCounter(model)
		if err != nil {
			if log != nil {
				log.Warn("tokenizer unavailable, using heuristic token counts", "model", model, "error", err)
			}
			return HeuristicCounter{}, nil
		}
		return counter, nil
	default:
		return nil, fmt.Errorf("unknown token counter %q", kind)
	}
}
