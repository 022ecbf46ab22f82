package market

import (
	"errors"
	"sort"

	"triarb/internal/exchange"
	"triarb/internal/model"
)

// ErrNoTriangles means the registry holds no complete cycle for the quote and bridge.
var ErrNoTriangles = errors.New("no triangles discovered")

// DiscoverTriangles returns every ALT/QUOTE, ALT/BRIDGE, BRIDGE/QUOTE cycle in the registry.
// The quote, the bridge and excluded bases never act as ALT. Triangles are ordered by ALT.
func DiscoverTriangles(r *Registry, quote, bridge string, excluded []string) ([]model.Triangle, error) {
	skip := map[string]struct{}{quote: {}, bridge: {}}
	for _, b := range excluded {
		skip[b] = struct{}{}
	}

	pair3, ok := r.Lookup(exchange.JoinSymbol(bridge, quote))
	if !ok {
		return nil, ErrNoTriangles
	}

	var triangles []model.Triangle
	for _, alt := range r.Bases() {
		if _, ok := skip[alt]; ok {
			continue
		}
		pair1, ok := r.Lookup(exchange.JoinSymbol(alt, quote))
		if !ok {
			continue
		}
		pair2, ok := r.Lookup(exchange.JoinSymbol(alt, bridge))
		if !ok {
			continue
		}
		triangles = append(triangles, model.Triangle{
			Alt:    alt,
			Bridge: bridge,
			Quote:  quote,
			Pair1:  pair1,
			Pair2:  pair2,
			Pair3:  pair3,
		})
	}

	if len(triangles) == 0 {
		return nil, ErrNoTriangles
	}
	sort.Slice(triangles, func(i, j int) bool { return triangles[i].Alt < triangles[j].Alt })
	return triangles, nil
}
