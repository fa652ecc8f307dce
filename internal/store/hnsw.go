package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/renameio/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// HNSWStore implements VectorStore using the coder/hnsw pure Go ANN graph
// for the vector side and a SQLite payload table (modernc.org/sqlite, no
// CGO) for the filterable-metadata side. Both live behind this one type
// so the vector store remains the sole persistent authority at the
// package boundary: nothing outside internal/store ever opens the
// payload database directly.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig
	db     *sql.DB // payload table; nil when the store has no payload path configured

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64 // string ID -> internal key
	keyMap  map[uint64]string // internal key -> string ID
	nextKey uint64            // next available key

	closed bool
}

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates a new HNSW-based vector store. payloadDBPath, if
// non-empty, opens (creating if needed) the SQLite payload table backing
// Upsert/DeleteByFilter/SearchWithFilter/EnumeratePayloads; pass "" for a
// vectors-only store (e.g. tests exercising Add/Search/Delete alone).
func NewHNSWStore(cfg VectorStoreConfig, payloadDBPath string) (*HNSWStore, error) {
	// Apply defaults
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16 // coder/hnsw default recommendation
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20 // coder/hnsw default
	}

	// Create HNSW graph
	graph := hnsw.NewGraph[uint64]()

	// Set distance function
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}

	// Set HNSW parameters
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25 // default level generation factor (1/ln(M))

	s := &HNSWStore{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}

	if payloadDBPath != "" {
		db, err := openPayloadDB(payloadDBPath)
		if err != nil {
			return nil, err
		}
		s.db = db
	}

	return s, nil
}

// openPayloadDB opens (and migrates) the SQLite payload table, mirroring
// SQLiteBM25Index's WAL/single-writer connection idiom.
func openPayloadDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create payload db directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open payload db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS payloads (
		chunk_id TEXT PRIMARY KEY,
		doc_id   TEXT NOT NULL,
		content  TEXT NOT NULL,
		metadata TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payloads_doc_id ON payloads(doc_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate payload db: %w", err)
	}

	return db, nil
}

// Add inserts vectors with their IDs.
// If an ID already exists, it will be updated (delete + add).
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return s.addVectorsLocked(ids, vectors)
}

// addVectorsLocked inserts vectors, replacing any existing id via lazy
// deletion. Caller must hold s.mu.
func (s *HNSWStore) addVectorsLocked(ids []string, vectors [][]float32) error {
	// Validate dimensions
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(v),
			}
		}
	}

	for i, id := range ids {
		// If ID exists, use lazy deletion (just update mappings, don't remove from graph)
		// This avoids a bug in coder/hnsw where deleting the last node breaks the graph
		if existingKey, exists := s.idMap[id]; exists {
			// Don't call s.graph.Delete() - use lazy deletion
			delete(s.keyMap, existingKey) // orphan the old key
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		// Normalize vector for cosine similarity
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		// Create node and add to graph
		node := hnsw.MakeNode(key, vec)
		s.graph.Add(node)

		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Upsert inserts or replaces entries, writing the vector side via
// addVectorsLocked and the Payload side into the SQLite payload table in
// the same critical section.
func (s *HNSWStore) Upsert(ctx context.Context, entries []*IndexedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
	}
	if err := s.addVectorsLocked(ids, vectors); err != nil {
		return err
	}

	if s.db == nil {
		return nil
	}
	return s.upsertPayloadsLocked(ctx, entries)
}

func (s *HNSWStore) upsertPayloadsLocked(ctx context.Context, entries []*IndexedEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payload upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO payloads (chunk_id, doc_id, content, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET doc_id=excluded.doc_id, content=excluded.content, metadata=excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare payload upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		docID, _ := e.Metadata["doc_id"].(string)
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal payload metadata for %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, docID, e.Content, string(metaJSON)); err != nil {
			return fmt.Errorf("upsert payload %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Search finds k nearest neighbors to query vector.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}

	// Handle empty graph
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	// Normalize query for cosine similarity
	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	// Search
	nodes := s.graph.Search(normalizedQuery, k)

	// Convert results
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Skip entries without valid ID mapping (shouldn't happen normally)
			continue
		}

		// Calculate distance
		distance := s.graph.Distance(normalizedQuery, node.Value)
		score := distanceToScore(distance, s.config.Metric)

		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    score,
		})
	}

	return results, nil
}

// Delete removes vectors by ID.
// Uses lazy deletion to avoid coder/hnsw issues with deleting last node.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			// Use lazy deletion - just remove from mappings
			// The node remains in the graph but won't appear in results
			// This avoids issues with coder/hnsw when deleting nodes
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}

	if s.db != nil && len(ids) > 0 {
		if err := s.deletePayloadRowsLocked(ctx, ids); err != nil {
			return err
		}
	}

	return nil
}

// DeleteByFilter removes every entry whose Payload matches filter — the
// store's metadata-filter delete, used to delete all chunks for a
// doc_id. A nil or empty filter is rejected — callers that mean "delete
// everything" should use ClearIndex instead.
func (s *HNSWStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return fmt.Errorf("DeleteByFilter requires a non-empty filter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return nil
	}

	ids, err := s.matchingIDsLocked(ctx, filter)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return s.deletePayloadRowsLocked(ctx, ids)
}

// matchingIDsLocked scans payloads for filter matches. doc_id-only
// filters (the common case: delete/search scoped to one document) push
// the predicate into SQL; anything else falls back to scanning decoded
// Metadata in Go, since payload Metadata is opaque JSON to SQLite.
func (s *HNSWStore) matchingIDsLocked(ctx context.Context, filter Filter) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, doc_id, metadata FROM payloads`)
	if err != nil {
		return nil, fmt.Errorf("query payloads for filter: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var chunkID, docID, metaJSON string
		if err := rows.Scan(&chunkID, &docID, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan payload row: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decode payload metadata for %s: %w", chunkID, err)
		}
		if filter.Matches(&Payload{ID: chunkID, DocID: docID, Metadata: meta}) {
			ids = append(ids, chunkID)
		}
	}
	return ids, rows.Err()
}

func (s *HNSWStore) deletePayloadRowsLocked(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payload delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM payloads WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare payload delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete payload %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// SearchWithFilter finds k nearest neighbors among entries whose Payload
// matches filter. Since coder/hnsw has no native filtered search, this
// over-fetches from the graph (bounded by the store's size) and filters
// in Go, trimming to k — acceptable at the local, single-project scale
// this store targets.
func (s *HNSWStore) SearchWithFilter(ctx context.Context, query []float32, k int, filter Filter) ([]*VectorResult, error) {
	if len(filter) == 0 {
		return s.Search(ctx, query, k)
	}

	s.mu.RLock()
	total := len(s.idMap)
	s.mu.RUnlock()

	oversampled, err := s.Search(ctx, query, total)
	if err != nil {
		return nil, err
	}
	if len(oversampled) == 0 {
		return []*VectorResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return []*VectorResult{}, nil
	}

	results := make([]*VectorResult, 0, k)
	for _, r := range oversampled {
		if len(results) >= k {
			break
		}
		payload, err := s.payloadByIDLocked(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if payload != nil && filter.Matches(payload) {
			results = append(results, r)
		}
	}
	return results, nil
}

// GetPayload returns the stored Payload for a single chunk id, or nil if
// it isn't present. The semantic indexer uses this to recover content and
// metadata for a search hit's id.
func (s *HNSWStore) GetPayload(ctx context.Context, chunkID string) (*Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return nil, nil
	}
	return s.payloadByIDLocked(ctx, chunkID)
}

func (s *HNSWStore) payloadByIDLocked(ctx context.Context, chunkID string) (*Payload, error) {
	var docID, content, metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_id, content, metadata FROM payloads WHERE chunk_id = ?`, chunkID).
		Scan(&docID, &content, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payload %s: %w", chunkID, err)
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("decode payload metadata for %s: %w", chunkID, err)
	}
	return &Payload{ID: chunkID, DocID: docID, Content: content, Metadata: meta}, nil
}

// EnumeratePayloads returns every stored Payload: reads all payloads
// from the store.
func (s *HNSWStore) EnumeratePayloads(ctx context.Context) ([]*Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return []*Payload{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, doc_id, content, metadata FROM payloads`)
	if err != nil {
		return nil, fmt.Errorf("query payloads: %w", err)
	}
	defer rows.Close()

	var out []*Payload
	for rows.Next() {
		var chunkID, docID, content, metaJSON string
		if err := rows.Scan(&chunkID, &docID, &content, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan payload row: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decode payload metadata for %s: %w", chunkID, err)
		}
		out = append(out, &Payload{ID: chunkID, DocID: docID, Content: content, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Payload{}
	}
	return out, nil
}

// AllIDs returns all vector IDs in the store.
// Used for consistency checking between stores.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains checks if ID exists.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	_, exists := s.idMap[id]
	return exists
}

// Count returns number of vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return len(s.idMap)
}

// HNSWStats contains HNSW store statistics including orphan count.
// Used by background compaction to determine when cleanup is needed.
type HNSWStats struct {
	ValidIDs   int // Number of valid ID mappings (active vectors)
	GraphNodes int // Total nodes in HNSW graph (includes orphans)
	Orphans    int // GraphNodes - ValidIDs (lazy-deleted nodes)
}

// Stats returns HNSW store statistics for compaction decisions.
// Orphans are nodes that remain in the graph after lazy deletion.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}

	validIDs := len(s.idMap)
	graphNodes := s.graph.Len()

	return HNSWStats{
		ValidIDs:   validIDs,
		GraphNodes: graphNodes,
		Orphans:    graphNodes - validIDs,
	}
}

// Save persists the index to disk.
// Uses atomic save (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	// Create directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Save HNSW graph via a renameio pending file: write-then-atomic-rename
	// without hand-rolling the cleanup-on-error paths.
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("failed to create pending index file: %w", err)
	}
	defer pf.Cleanup()

	if err := s.graph.Export(pf); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to commit index file: %w", err)
	}

	// Save ID mappings
	metaPath := path + ".meta"
	if err := s.saveMetadata(metaPath); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// saveMetadata saves ID mappings to a gob file via an atomic rename.
func (s *HNSWStore) saveMetadata(path string) error {
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending metadata file: %w", err)
	}
	defer pf.Cleanup()

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	if err := gob.NewEncoder(pf).Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	return pf.CloseAtomicallyReplace()
}

// Load loads the index from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	// Load ID mappings first to get config
	metaPath := path + ".meta"
	if err := s.loadMetadata(metaPath); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	// Load HNSW graph
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// Use bufio.Reader because coder/hnsw Import requires io.ByteReader
	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	return nil
}

// loadMetadata loads ID mappings from a gob file.
func (s *HNSWStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	// Rebuild mappings
	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string)
	s.nextKey = meta.NextKey
	s.config = meta.Config

	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	return nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	// coder/hnsw Graph doesn't need explicit cleanup
	s.graph = nil

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadHNSWStoreDimensions reads the dimensions from an existing HNSW store's metadata.
// Returns 0 if the metadata file doesn't exist (fresh start).
// The path should be the vector store path (e.g., "vectors.hnsw"), not the meta file path.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	metaPath := vectorPath + ".meta"

	file, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // Fresh start
		}
		return 0, fmt.Errorf("failed to open hnsw metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close hnsw metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return 0, fmt.Errorf("failed to decode hnsw metadata: %w", err)
	}

	return meta.Config.Dimensions, nil
}

// Verify interface implementation
var _ VectorStore = (*HNSWStore)(nil)

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score.
// For cosine distance: score = 1 - distance (distance ranges 0-2)
// For L2 distance: score = 1 / (1 + distance)
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "cos":
		// Cosine distance ranges from 0 (identical) to 2 (opposite)
		// Convert to similarity score 0-1
		return 1.0 - distance/2.0
	case "l2":
		// L2 distance ranges from 0 to infinity
		// Convert to similarity score 0-1
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
