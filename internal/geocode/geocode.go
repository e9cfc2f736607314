// Package geocode resolves free-text place queries to coordinates
// through an external geocoding provider.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
)

var (
	// ErrEmptyQuery is returned for empty or whitespace-only queries,
	// before any provider call is made.
	ErrEmptyQuery = errors.New("geocode: empty query")
	// ErrNotFound is returned when the provider answered but had no
	// match. It is distinct from a transport failure, which is retryable.
	ErrNotFound = errors.New("geocode: no match for query")
)

// Provider is the external geocoding collaborator. An empty result
// slice means "not found"; an error means the lookup itself failed.
type Provider interface {
	Search(ctx context.Context, query string) ([]geo.Coordinate, error)
}

// Resolver validates queries and maps provider results onto the
// not-found/transport error taxonomy.
type Resolver struct {
	provider Provider
}

func NewResolver(provider Provider) *Resolver {
	return &Resolver{provider: provider}
}

// Resolve looks up query and returns the best (first) match.
func (r *Resolver) Resolve(ctx context.Context, query string) (geo.Coordinate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return geo.Coordinate{}, ErrEmptyQuery
	}

	results, err := r.provider.Search(ctx, query)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("geocode: search %q: %w", query, err)
	}
	if len(results) == 0 {
		return geo.Coordinate{}, ErrNotFound
	}

	return results[0], nil
}
