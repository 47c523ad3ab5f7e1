// Package llm wraps the remote model used for AI-based product extraction.
package llm

import (
	"context"
	"errors"
)

// ErrCircuitOpen indicates the client is refusing calls after repeated
// failures and will recover after a cooldown.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

// ErrEmptyResponse indicates the model returned no usable content.
var ErrEmptyResponse = errors.New("llm returned empty response")

// ErrMalformedResponse indicates the model response contained no parseable
// JSON object.
var ErrMalformedResponse = errors.New("llm response contains no JSON object")

// ProductFields is the structured output the model is asked to produce from
// a post caption. Prices are pointers because the model may legitimately
// find none.
type ProductFields struct {
	Name             string   `json:"name"`
	ShortDescription string   `json:"short_description"`
	Description      string   `json:"description"`
	CurrentPrice     *float64 `json:"current_price"`
	OldPrice         *float64 `json:"old_price"`
}

// Client is the remote extraction capability. Implementations may fail with
// timeouts, quota errors, or malformed output; callers are expected to fall
// back to rule-based extraction on any error.
type Client interface {
	ExtractProduct(ctx context.Context, text, channelName string) (*ProductFields, error)
}
