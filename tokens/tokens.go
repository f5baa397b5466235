// Package tokens counts tokens for the size ceilings used when collapsing
// document lists.
package tokens

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter reports the token length of a piece of text.
type Counter interface {
	Count(text string) int
}

// NewCounter returns a Counter for the given model name. When the model's
// encoding cannot be loaded, a rune-based estimate is used instead.
func NewCounter(model string) Counter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Warn("failed to load token encoding, falling back to estimate", "model", model, "error", err)
		return EstimateCounter{}
	}
	return tiktokenCounter{encoding: enc}
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// EstimateCounter approximates token counts as one token per four runes.
// Good enough when only a rough budget is needed and no encoding is
// available.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	count := n / 4
	if n%4 != 0 {
		count++
	}
	return count
}
