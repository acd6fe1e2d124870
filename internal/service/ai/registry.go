package ai

import (
	"strings"

	"github.com/lucasnobrega7/lobe-chat/internal/config"
)

// Option describes one selectable model: the public id clients send, the
// provider that serves it, and display metadata.
type Option struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Description   string `json:"description"`
	ContextLength int    `json:"context_length"`
}

// Registry is the static model id → provider handle mapping. It is
// configuration, not logic: no discovery, no health checks, no fallback.
type Registry struct {
	options []Option
	index   map[string]int
}

var defaultOptions = []Option{
	{
		ID:            "grok-2",
		Name:          "Grok-2",
		Provider:      "xai",
		Model:         "grok-2-1212",
		Description:   "xAI's flagship model for general purpose tasks",
		ContextLength: 8192,
	},
	{
		ID:            "llama-3-8b",
		Name:          "Llama 3 8B",
		Provider:      "groq",
		Model:         "llama-3.1-8b-instant",
		Description:   "Fast and efficient language model for text generation",
		ContextLength: 8192,
	},
	{
		ID:            "llama-3-70b",
		Name:          "Llama 3 70B",
		Provider:      "groq",
		Model:         "llama-3.1-70b-instant",
		Description:   "Powerful language model with strong reasoning capabilities",
		ContextLength: 8192,
	},
	{
		ID:            "claude-3-5-sonnet",
		Name:          "Claude 3.5 Sonnet",
		Provider:      "claude",
		Model:         "claude-3-5-sonnet-latest",
		Description:   "Anthropic's balanced model for complex tasks",
		ContextLength: 200000,
	},
	{
		ID:            "gemini-2.0-flash",
		Name:          "Gemini 2.0 Flash",
		Provider:      "gemini",
		Model:         "gemini-2.0-flash",
		Description:   "Google's fast multimodal model with a long context window",
		ContextLength: 1048576,
	},
}

// NewRegistry builds the registry from configuration, falling back to the
// built-in model table when no models are configured.
func NewRegistry(configured []config.ModelConfig) *Registry {
	options := make([]Option, 0, len(configured))
	for _, m := range configured {
		id := strings.TrimSpace(m.ID)
		if id == "" || m.Provider == "" {
			continue
		}
		modelName := m.Model
		if modelName == "" {
			modelName = id
		}
		options = append(options, Option{
			ID:            id,
			Name:          m.Name,
			Provider:      strings.ToLower(strings.TrimSpace(m.Provider)),
			Model:         modelName,
			Description:   m.Description,
			ContextLength: m.ContextLength,
		})
	}
	if len(options) == 0 {
		options = append(options, defaultOptions...)
	}

	index := make(map[string]int, len(options))
	for i, opt := range options {
		index[opt.ID] = i
	}
	return &Registry{options: options, index: index}
}

// Resolve maps a model id to its option. Absence is a client error, not a
// server fault.
func (r *Registry) Resolve(id string) (*Option, bool) {
	i, ok := r.index[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	return &r.options[i], true
}

// Options lists every registered model.
func (r *Registry) Options() []Option {
	out := make([]Option, len(r.options))
	copy(out, r.options)
	return out
}
