//go:build cgo

package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"codegraph/internal/uast"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
//
// Dangling edges are represented with placeholder endpoint rows carrying
// present=false; traversal filters them out, so the edge becomes visible the
// moment its real endpoint is upserted.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection

	// The driver exposes a single connection; writes are serialized here so
	// one transaction owns the connection at a time.
	writeMu sync.Mutex
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path, so the graph survives across sessions. KuzuDB
// creates the leaf directory itself.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema. A single node
// table keeps node kinds as data, so one REL table covers every edge kind.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS CodeNode(
		id STRING,
		kind STRING,
		name STRING,
		lang STRING,
		file STRING,
		start_byte INT64,
		end_byte INT64,
		start_line INT64,
		start_col INT64,
		end_line INT64,
		end_col INT64,
		sig STRING,
		present BOOLEAN,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS REL(FROM CodeNode TO CodeNode, kind STRING)`,
}

// InitSchema creates the node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Transactions ----------

// Begin opens a write transaction. The connection is held until Commit or
// Rollback.
func (s *KuzuStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	res, err := s.conn.Query("BEGIN TRANSACTION")
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("kuzu: begin: %w", err)
	}
	res.Close()
	return &kuzuTx{store: s}, nil
}

type kuzuTx struct {
	store *KuzuStore
	done  bool
}

// UpsertNode writes the node row with present=true, replacing any
// placeholder previously minted for a dangling edge endpoint.
func (t *kuzuTx) UpsertNode(node uast.Node) error {
	return t.store.exec(
		`MERGE (n:CodeNode {id: $id})
		 SET n.kind = $kind, n.name = $name, n.lang = $lang, n.file = $file,
		     n.start_byte = $sb, n.end_byte = $eb,
		     n.start_line = $sl, n.start_col = $sc,
		     n.end_line = $el, n.end_col = $ec,
		     n.sig = $sig, n.present = true`,
		map[string]any{
			"id":   node.ID.String(),
			"kind": string(node.Kind),
			"name": node.Name,
			"lang": string(node.Lang),
			"file": node.File,
			"sb":   int64(node.Span.StartByte),
			"eb":   int64(node.Span.EndByte),
			"sl":   int64(node.Span.StartLine),
			"sc":   int64(node.Span.StartCol),
			"el":   int64(node.Span.EndLine),
			"ec":   int64(node.Span.EndCol),
			"sig":  node.Signature,
		},
	)
}

// UpsertEdge writes the edge, minting present=false placeholder endpoints as
// needed so the relationship row can exist before its target is parsed.
func (t *kuzuTx) UpsertEdge(edge uast.Edge) error {
	for _, id := range []uast.NodeID{edge.Src, edge.Dst} {
		err := t.store.exec(
			`MERGE (n:CodeNode {id: $id})
			 ON CREATE SET n.present = false, n.kind = '', n.name = '',
			               n.lang = '', n.file = '', n.sig = '',
			               n.start_byte = 0, n.end_byte = 0,
			               n.start_line = 0, n.start_col = 0,
			               n.end_line = 0, n.end_col = 0`,
			map[string]any{"id": id.String()},
		)
		if err != nil {
			return err
		}
	}
	return t.store.exec(
		`MATCH (a:CodeNode {id: $src}), (b:CodeNode {id: $dst})
		 MERGE (a)-[:REL {kind: $kind}]->(b)`,
		map[string]any{
			"src":  edge.Src.String(),
			"dst":  edge.Dst.String(),
			"kind": string(edge.Kind),
		},
	)
}

// DeleteNode removes the node and every incident edge. Absent ids succeed.
func (t *kuzuTx) DeleteNode(id uast.NodeID) error {
	return t.store.exec(
		"MATCH (n:CodeNode {id: $id}) DETACH DELETE n",
		map[string]any{"id": id.String()},
	)
}

// DeleteEdge removes one (src, dst, kind) relationship. Absent edges succeed.
func (t *kuzuTx) DeleteEdge(edgeID string) error {
	edge, err := uast.ParseEdgeID(edgeID)
	if err != nil {
		return fmt.Errorf("kuzu: %w", err)
	}
	return t.store.exec(
		`MATCH (a:CodeNode {id: $src})-[r:REL {kind: $kind}]->(b:CodeNode {id: $dst})
		 DELETE r`,
		map[string]any{
			"src":  edge.Src.String(),
			"dst":  edge.Dst.String(),
			"kind": string(edge.Kind),
		},
	)
}

func (t *kuzuTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.writeMu.Unlock()
	res, err := t.store.conn.Query("COMMIT")
	if err != nil {
		return fmt.Errorf("kuzu: commit: %w", err)
	}
	res.Close()
	return nil
}

func (t *kuzuTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.writeMu.Unlock()
	res, err := t.store.conn.Query("ROLLBACK")
	if err != nil {
		return fmt.Errorf("kuzu: rollback: %w", err)
	}
	res.Close()
	return nil
}

// ---------- Read operations ----------

// GetNode retrieves a node by id. Placeholder rows are treated as absent.
func (s *KuzuStore) GetNode(_ context.Context, id uast.NodeID) (*uast.Node, error) {
	rows, err := s.query(
		`MATCH (n:CodeNode {id: $id}) WHERE n.present
		 RETURN `+nodeColumns,
		map[string]any{"id": id.String()},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	node, err := rowToNode(rows[0])
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *KuzuStore) HasNode(ctx context.Context, id uast.NodeID) (bool, error) {
	_, err := s.GetNode(ctx, id)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *KuzuStore) NodesInFile(_ context.Context, path string) ([]uast.Node, error) {
	rows, err := s.query(
		`MATCH (n:CodeNode {file: $file}) WHERE n.present
		 RETURN `+nodeColumns,
		map[string]any{"file": uast.NormalizePath(path)},
	)
	if err != nil {
		return nil, err
	}
	return rowsToNodes(rows)
}

func (s *KuzuStore) NodesByKind(_ context.Context, kind uast.NodeKind) ([]uast.Node, error) {
	rows, err := s.query(
		`MATCH (n:CodeNode {kind: $kind}) WHERE n.present
		 RETURN `+nodeColumns,
		map[string]any{"kind": string(kind)},
	)
	if err != nil {
		return nil, err
	}
	return rowsToNodes(rows)
}

// Neighbors returns present nodes one hop away. Placeholder endpoints are
// filtered, which is what keeps dangling edges traversal-invisible.
func (s *KuzuStore) Neighbors(_ context.Context, id uast.NodeID, dir Direction, kinds []uast.EdgeKind) ([]uast.Node, error) {
	pattern := "(a:CodeNode {id: $id})-[r:REL]->(n:CodeNode)"
	if dir == DirectionIn {
		pattern = "(n:CodeNode)-[r:REL]->(a:CodeNode {id: $id})"
	}
	cypher := "MATCH " + pattern + " WHERE n.present"
	params := map[string]any{"id": id.String()}
	if len(kinds) > 0 {
		cypher += " AND list_contains($kinds, r.kind)"
		ks := make([]string, len(kinds))
		for i, k := range kinds {
			ks[i] = string(k)
		}
		params["kinds"] = ks
	}
	cypher += " RETURN DISTINCT " + nodeColumns

	rows, err := s.query(cypher, params)
	if err != nil {
		return nil, err
	}
	return rowsToNodes(rows)
}

// ShortestPath returns the node ids along one shortest undirected path, or
// nil when no path exists. Placeholder endpoints break the path.
func (s *KuzuStore) ShortestPath(_ context.Context, from, to uast.NodeID) ([]uast.NodeID, error) {
	rows, err := s.query(
		`MATCH p = (a:CodeNode {id: $from})-[:REL* SHORTEST 1..10]-(b:CodeNode {id: $to})
		 WHERE all(n IN nodes(p) WHERE n.present)
		 RETURN [n IN nodes(p) | n.id] LIMIT 1`,
		map[string]any{"from": from.String(), "to": to.String()},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	raw, ok := rows[0][0].([]any)
	if !ok {
		return nil, fmt.Errorf("kuzu: unexpected path shape %T", rows[0][0])
	}
	path := make([]uast.NodeID, 0, len(raw))
	for _, v := range raw {
		id, err := uast.ParseNodeID(toString(v))
		if err != nil {
			return nil, fmt.Errorf("kuzu: path node: %w", err)
		}
		path = append(path, id)
	}
	return path, nil
}

// Stats summarizes present nodes and their edges.
func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	stats := &Stats{
		NodesByKind: map[uast.NodeKind]int{},
		EdgesByKind: map[uast.EdgeKind]int{},
	}

	rows, err := s.query(
		"MATCH (n:CodeNode) WHERE n.present RETURN n.kind, count(n)", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		c := toInt(r[1])
		stats.NodesByKind[uast.NodeKind(toString(r[0]))] = c
		stats.Nodes += int64(c)
	}

	rows, err = s.query("MATCH ()-[r:REL]->() RETURN r.kind, count(r)", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		c := toInt(r[1])
		stats.EdgesByKind[uast.EdgeKind(toString(r[0]))] = c
		stats.Edges += int64(c)
	}

	rows, err = s.query(
		"MATCH (n:CodeNode) WHERE n.present RETURN count(DISTINCT n.file)", nil)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		stats.Files = int64(toInt(rows[0][0]))
	}
	return stats, nil
}

// ---------- Internal helpers ----------

const nodeColumns = `n.id, n.kind, n.name, n.lang, n.file,
	n.start_byte, n.end_byte, n.start_line, n.start_col, n.end_line, n.end_col,
	n.sig`

func rowToNode(r []any) (uast.Node, error) {
	id, err := uast.ParseNodeID(toString(r[0]))
	if err != nil {
		return uast.Node{}, fmt.Errorf("kuzu: node id: %w", err)
	}
	return uast.Node{
		ID:   id,
		Kind: uast.NodeKind(toString(r[1])),
		Name: toString(r[2]),
		Lang: uast.Language(toString(r[3])),
		File: toString(r[4]),
		Span: uast.Span{
			StartByte: toInt(r[5]),
			EndByte:   toInt(r[6]),
			StartLine: toInt(r[7]),
			StartCol:  toInt(r[8]),
			EndLine:   toInt(r[9]),
			EndCol:    toInt(r[10]),
		},
		Signature: toString(r[11]),
	}, nil
}

func rowsToNodes(rows [][]any) ([]uast.Node, error) {
	nodes := make([]uast.Node, 0, len(rows))
	for _, r := range rows {
		node, err := rowToNode(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
