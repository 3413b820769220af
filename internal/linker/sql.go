package linker

import (
	"context"
	"fmt"
	"strings"

	"codegraph/internal/uast"
)

// SQLLinker connects SqlQuery literals to the class modeling the table they
// touch: `SELECT * FROM users` links to a class named `User` or `Users`.
// Reads get a READS edge, mutations a WRITES edge.
type SQLLinker struct{}

func (SQLLinker) Name() string { return "sql" }

func (SQLLinker) Link(ctx context.Context, g GraphReader) ([]uast.Edge, error) {
	queries, err := g.NodesByKind(ctx, uast.KindSQLQuery)
	if err != nil {
		return nil, fmt.Errorf("sql linker: %w", err)
	}
	if len(queries) == 0 {
		return nil, nil
	}
	classes, err := g.NodesByKind(ctx, uast.KindClass)
	if err != nil {
		return nil, fmt.Errorf("sql linker: %w", err)
	}

	byName := map[string][]uast.Node{}
	for _, c := range classes {
		byName[normalizeName(c.Name)] = append(byName[normalizeName(c.Name)], c)
	}

	var edges []uast.Edge
	for _, q := range queries {
		table, write := tableRef(q.Name)
		if table == "" {
			continue
		}
		kind := uast.EdgeReads
		if write {
			kind = uast.EdgeWrites
		}
		for _, name := range []string{table, strings.TrimSuffix(table, "s")} {
			for _, c := range byName[normalizeName(name)] {
				edges = append(edges, uast.NewEdge(q.ID, c.ID, kind))
			}
		}
	}
	return edges, nil
}

// tableRef extracts the first table name out of a SQL statement and whether
// the statement mutates it.
func tableRef(sql string) (table string, write bool) {
	fields := strings.Fields(sql)
	upper := make([]string, len(fields))
	for i, f := range fields {
		upper[i] = strings.ToUpper(f)
	}
	mutates := len(upper) > 0 && upper[0] != "SELECT"
	for i, f := range upper {
		switch f {
		case "FROM", "INTO", "UPDATE", "TABLE":
			if i+1 < len(fields) {
				name := strings.Trim(fields[i+1], `"'()`+"`;,")
				return name, mutates
			}
		}
	}
	return "", false
}
