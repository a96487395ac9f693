// Package llm abstracts the LLM backends the research service can run
// against. The decision oracle only needs single-shot prompt completion,
// so the interface stays deliberately small.
package llm

import (
	"context"
	"fmt"
	"os"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// NewClientFromEnv selects a backend from the LLM_BACKEND environment
// variable ("openai" or "ollama", default "ollama").
func NewClientFromEnv() (LLMClient, error) {
	switch backend := os.Getenv("LLM_BACKEND"); backend {
	case "openai":
		return NewOpenAIClient()
	case "", "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q", backend)
	}
}
