package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider name returns (nil, nil).
func NewProvider(config Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch strings.ToLower(config.Provider) {
	case "openai":
		p, err = asProvider(NewOpenAIProvider(config))

	case "anthropic", "claude":
		p, err = asProvider(NewAnthropicProvider(config))

	case "ollama":
		p, err = asProvider(NewOllamaProvider(config))

	case "gemini", "google":
		p, err = asProvider(NewGeminiProvider(config))

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, gemini)", config.Provider)
	}

	if err != nil {
		return nil, err
	}
	return p, nil
}

// asProvider avoids returning a typed nil inside a non-nil interface
func asProvider[T Provider](p T, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
