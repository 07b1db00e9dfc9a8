package prompts

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry indexes embedded prompts by key.
type Registry struct {
	embedded map[string]EmbeddedPrompt
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		embedded: make(map[string]EmbeddedPrompt),
		logger:   logger,
	}
}

// Register adds or replaces an embedded prompt, filling in its hash and variables.
func (r *Registry) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Get returns the prompt registered under key.
func (r *Registry) Get(key string) (EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return p, ok
}

// Hash returns the hash of the prompt registered under key, or "".
func (r *Registry) Hash(key string) string {
	p, _ := r.Get(key)
	return p.Hash
}

// List returns all prompts sorted by key.
func (r *Registry) List() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
