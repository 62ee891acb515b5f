// Package mock provides a deterministic test double for the
// embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxscribe/voxscribe/pkg/embeddings"
)

// Provider is a mock embeddings implementation. Unless Err is set, Embed
// derives a deterministic vector from the input text so that equal texts
// produce equal vectors.
type Provider struct {
	mu sync.Mutex

	// Dim is the vector dimension to produce. Defaults to 4 when zero.
	Dim int

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// Calls records every embedded text in order, across both methods.
	Calls []string
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) dim() int {
	if p.Dim == 0 {
		return 4
	}
	return p.Dim
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// vector derives a deterministic unit-ish vector from text bytes.
func (p *Provider) vector(text string) []float32 {
	v := make([]float32, p.dim())
	var sum uint32
	for _, b := range []byte(text) {
		sum = sum*31 + uint32(b)
	}
	for i := range v {
		sum = sum*1103515245 + 12345
		v[i] = float32(sum%1000) / 1000
	}
	return v
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dim() }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }

// CallCount returns the number of texts embedded. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
