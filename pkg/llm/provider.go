package llm

import "context"

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
}

// ModelSelector is implemented by providers that can serve a different model
// per request. WithModel returns a Provider bound to the given model; the
// receiver is unchanged.
type ModelSelector interface {
	WithModel(model string) Provider
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// ModelInfo describes a selectable model and its context window.
type ModelInfo struct {
	Name          string `json:"name"`
	ContextWindow int    `json:"contextWindow"`
}

// KnownModels maps model identifiers to their context windows. Used for the
// tokenUsage context limit reported to clients.
var KnownModels = map[string]ModelInfo{
	"gpt-4o":        {Name: "gpt-4o", ContextWindow: 128000},
	"gpt-4o-mini":   {Name: "gpt-4o-mini", ContextWindow: 128000},
	"gpt-4-turbo":   {Name: "gpt-4-turbo", ContextWindow: 128000},
	"gpt-3.5-turbo": {Name: "gpt-3.5-turbo", ContextWindow: 16385},
}

// ContextWindowFor returns the context window for a model, or a conservative
// default for unknown models.
func ContextWindowFor(model string) int {
	if info, ok := KnownModels[model]; ok {
		return info.ContextWindow
	}
	return 128000
}
