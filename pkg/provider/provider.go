// Package provider defines the completion provider used by the chat orchestrator and its OpenAI
// implementation.
package provider

import (
	"context"
	"errors"
)

// ErrMalformedResponse is returned when the provider answers with anything other than a single
// assistant reply
var ErrMalformedResponse = errors.New("malformed completion response")

// Message is a role-tagged entry sent to the provider
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params holds the fixed generation parameters read from configuration at startup
type Params struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Request is one completion call: the full ordered transcript plus generation parameters
type Request struct {
	Messages []Message
	Params
}

// Provider turns a transcript into a single assistant reply
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a plain function to the Provider interface
type ProviderFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f
func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
