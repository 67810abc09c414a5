// Package generators provides a multiplexer for genx.Generator routing.
package generators

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haivivi/emochat/pkg/genx"
	"github.com/haivivi/emochat/pkg/trie"
)

var _ genx.Generator = (*Mux)(nil)

// ErrNotFound is returned when no generator is registered under a name.
var ErrNotFound = errors.New("generators: generator not found")

// Mux is a generator multiplexer that routes requests to registered
// generators by pattern using a trie. Patterns are model names such as
// "groq/llama" or wildcards such as "groq/*"; an exact name wins over a
// wildcard.
type Mux struct {
	mu  sync.RWMutex
	mux *trie.Trie[genx.Generator]
}

// NewMux creates a new generator multiplexer.
func NewMux() *Mux {
	return &Mux{mux: trie.New[genx.Generator]()}
}

// Handle registers a generator for the given pattern.
// Returns an error if a generator is already registered for the pattern.
func (gm *Mux) Handle(pattern string, gen genx.Generator) error {
	if pattern == "" || gen == nil {
		return fmt.Errorf("generators: empty pattern or nil generator")
	}
	gm.mu.Lock()
	defer gm.mu.Unlock()
	err := gm.mux.Set(pattern, func(ptr *genx.Generator, existed bool) error {
		if existed {
			return fmt.Errorf("generators: generator already registered for %s", pattern)
		}
		*ptr = gen
		return nil
	})
	if errors.Is(err, trie.ErrInvalidPattern) {
		return fmt.Errorf("generators: %s: %w", pattern, err)
	}
	return err
}

// Has reports whether a generator is registered for name.
func (gm *Mux) Has(name string) bool {
	_, err := gm.get(name)
	return err == nil
}

// Names returns the registered patterns in sorted order.
func (gm *Mux) Names() []string {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	names := make([]string, 0, gm.mux.Len())
	gm.mux.Walk(func(pattern string, _ genx.Generator) {
		names = append(names, pattern)
	})
	return names
}

// Generate looks up the generator registered for name and runs it.
func (gm *Mux) Generate(ctx context.Context, name string, mctx genx.ModelContext) (*genx.Result, error) {
	gen, err := gm.get(name)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, name, mctx)
}

func (gm *Mux) get(name string) (genx.Generator, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	gen, ok := gm.mux.Get(name)
	if !ok || gen == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return gen, nil
}
