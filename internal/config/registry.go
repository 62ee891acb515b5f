package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxscribe/voxscribe/pkg/embeddings"
	"github.com/voxscribe/voxscribe/pkg/llm"
	"github.com/voxscribe/voxscribe/pkg/transcribe"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory
// has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions for each
// backend kind. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	transcribers map[string]func(BackendEntry) (transcribe.Transcriber, error)
	llm          map[string]func(LLMConfig) (llm.Provider, error)
	embeddings   map[string]func(EmbeddingsConfig) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcribers: make(map[string]func(BackendEntry) (transcribe.Transcriber, error)),
		llm:          make(map[string]func(LLMConfig) (llm.Provider, error)),
		embeddings:   make(map[string]func(EmbeddingsConfig) (embeddings.Provider, error)),
	}
}

// RegisterTranscriber registers a transcription backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(BackendEntry) (transcribe.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribers[name] = factory
}

// RegisterLLM registers a chat-completion backend factory under name.
func (r *Registry) RegisterLLM(name string, factory func(LLMConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embedding backend factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(EmbeddingsConfig) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateTranscriber instantiates the backend named by entry.Backend.
// Returns [ErrBackendNotRegistered] if no factory is registered for it.
func (r *Registry) CreateTranscriber(entry BackendEntry) (transcribe.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.transcribers[entry.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber/%q", ErrBackendNotRegistered, entry.Backend)
	}
	return factory(entry)
}

// CreateTranscriberChain instantiates the primary backend followed by its
// fallbacks, preserving order.
func (r *Registry) CreateTranscriberChain(cfg TranscriberConfig) ([]transcribe.Transcriber, error) {
	backends := make([]transcribe.Transcriber, 0, 1+len(cfg.Fallbacks))

	primary, err := r.CreateTranscriber(cfg.BackendEntry)
	if err != nil {
		return nil, err
	}
	backends = append(backends, primary)

	for i, fb := range cfg.Fallbacks {
		t, err := r.CreateTranscriber(fb)
		if err != nil {
			return nil, fmt.Errorf("config: fallbacks[%d]: %w", i, err)
		}
		backends = append(backends, t)
	}
	return backends, nil
}

// CreateLLM instantiates the chat-completion backend named by cfg.Provider.
func (r *Registry) CreateLLM(cfg LLMConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrBackendNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateEmbeddings instantiates the embedding backend. The name is fixed
// to "openai" until a second implementation exists.
func (r *Registry) CreateEmbeddings(cfg EmbeddingsConfig) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings["openai"]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrBackendNotRegistered, "openai")
	}
	return factory(cfg)
}
