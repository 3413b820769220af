package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"codegraph/internal/graph"
	"codegraph/internal/metrics"
)

const timeRounding = time.Millisecond

// printStats renders graph contents and pipeline counters as a small table.
func printStats(ctx context.Context, store graph.Store, m *metrics.Metrics) {
	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Printf("stats unavailable: %v\n", err)
		return
	}

	fmt.Printf("\nGraph: %d nodes, %d edges across %d files\n",
		stats.Nodes, stats.Edges, stats.Files)

	if len(stats.NodesByKind) > 0 {
		fmt.Println("\nNodes by kind:")
		printKindTable(toRows(stats.NodesByKind))
	}
	if len(stats.EdgesByKind) > 0 {
		fmt.Println("\nEdges by kind:")
		printKindTable(toRows(stats.EdgesByKind))
	}

	snap := m.Snapshot()
	fmt.Printf("\nPipeline: %d patches applied, %d retries, %d parked, %d parse failures, %d stale discards\n",
		snap.PatchesApplied, snap.ApplyRetries, snap.PatchesParked,
		snap.ParseFailures, snap.StaleDiscards)
}

type kindRow struct {
	name  string
	count int
}

func toRows[K ~string](byKind map[K]int) []kindRow {
	rows := make([]kindRow, 0, len(byKind))
	for k, c := range byKind {
		rows = append(rows, kindRow{name: string(k), count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})
	return rows
}

func printKindTable(rows []kindRow) {
	for _, r := range rows {
		fmt.Printf("  %-12s %6d\n", r.name, r.count)
	}
}
