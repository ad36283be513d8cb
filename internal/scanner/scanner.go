package scanner

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one structural heuristic for locating review text on a page.
// Scan returns raw text blocks in document order; filtering happens in the caller.
type Strategy interface {
	Name() string
	Scan(doc *goquery.Document) []string
}

// Func adapts a plain function into a Strategy.
type Func struct {
	ID   string
	Find func(doc *goquery.Document) []string
}

// Name identifies the strategy inside the registry.
func (f Func) Name() string {
	return f.ID
}

// Scan runs the wrapped function.
func (f Func) Scan(doc *goquery.Document) []string {
	if f.Find == nil || doc == nil {
		return nil
	}
	return f.Find(doc)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("strategy %s is not registered", name)
}

// Chain resolves names into an ordered strategy list, most specific first.
func (r *Registry) Chain(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty strategy chain")
	}

	chain := make([]Strategy, 0, len(names))
	seen := map[string]struct{}{}
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		strategy, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, strategy)
	}
	return chain, nil
}
