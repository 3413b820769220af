package linker

import (
	"context"
	"fmt"
	"strings"

	"codegraph/internal/uast"
)

// RouteLinker connects Route nodes to handler functions in other files by a
// path-segment naming heuristic: a route `/users/list` matches functions
// named `list`, `list_users`, `get_users`, and similar.
type RouteLinker struct{}

func (RouteLinker) Name() string { return "route" }

func (RouteLinker) Link(ctx context.Context, g GraphReader) ([]uast.Edge, error) {
	routes, err := g.NodesByKind(ctx, uast.KindRoute)
	if err != nil {
		return nil, fmt.Errorf("route linker: %w", err)
	}
	if len(routes) == 0 {
		return nil, nil
	}
	funcs, err := g.NodesByKind(ctx, uast.KindFunction)
	if err != nil {
		return nil, fmt.Errorf("route linker: %w", err)
	}
	methods, err := g.NodesByKind(ctx, uast.KindMethod)
	if err != nil {
		return nil, fmt.Errorf("route linker: %w", err)
	}
	handlers := append(funcs, methods...)

	byName := map[string][]uast.Node{}
	for _, h := range handlers {
		byName[normalizeName(h.Name)] = append(byName[normalizeName(h.Name)], h)
	}

	var edges []uast.Edge
	for _, route := range routes {
		for _, candidate := range handlerNames(route.Name) {
			for _, h := range byName[candidate] {
				if h.File == route.File {
					continue // in-file links are the adapter's job
				}
				edges = append(edges, uast.NewEdge(route.ID, h.ID, uast.EdgeRoutesTo))
			}
		}
	}
	return edges, nil
}

// handlerNames derives candidate handler names from a route path. For
// `/users/{id}` the candidates are `users`, `get_users`, and `users_handler`.
func handlerNames(routePath string) []string {
	segments := strings.Split(strings.Trim(routePath, "/"), "/")
	var last string
	for i := len(segments) - 1; i >= 0; i-- {
		s := segments[i]
		if s == "" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, ":") || strings.HasPrefix(s, "<") {
			continue
		}
		last = s
		break
	}
	if last == "" {
		return nil
	}
	base := normalizeName(last)
	return []string{base, "get" + base, base + "handler", "handle" + base}
}

// normalizeName lowercases and strips separators so `getUsers`, `get_users`
// and `get-users` compare equal.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
