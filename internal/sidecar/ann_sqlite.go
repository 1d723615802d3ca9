package sidecar

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "modernc.org/sqlite"
)

func init() {
	sqlite_vec.Auto()
}

// sqliteVecIndex is the optional ANN backend for semantic recall, backed by
// sqlite-vec. It is rebuilt from the JSON ledger on every cold start — it
// never is the durable store itself, matching the Design Note that the
// ledger remains the single source of truth.
type sqliteVecIndex struct {
	db  *sql.DB
	dim int
}

func newSQLiteVecIndex(cacheDir string, dim int) (*sqliteVecIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("sidecar: invalid embedding dimension %d", dim)
	}
	path := filepath.Join(cacheDir, "vectors.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sidecar: open vector db: %w", err)
	}
	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_index USING vec0(embedding float[%d], fact_key TEXT)",
		dim,
	)
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("sidecar: create vec_index: %w", err)
	}
	return &sqliteVecIndex{db: db, dim: dim}, nil
}

func (idx *sqliteVecIndex) upsert(key string, vec []float32) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("sidecar: embedding dimension mismatch: got %d want %d", len(vec), idx.dim)
	}
	if _, err := idx.db.Exec("DELETE FROM vec_index WHERE fact_key = ?", key); err != nil {
		return err
	}
	_, err := idx.db.Exec(
		"INSERT INTO vec_index (embedding, fact_key) VALUES (?, ?)",
		encodeFloat32Slice(vec), key,
	)
	return err
}

func (idx *sqliteVecIndex) delete(key string) error {
	_, err := idx.db.Exec("DELETE FROM vec_index WHERE fact_key = ?", key)
	return err
}

type annHit struct {
	key   string
	score float64
}

func (idx *sqliteVecIndex) search(queryVec []float32, k int) ([]annHit, error) {
	rows, err := idx.db.Query(
		"SELECT fact_key, vec_distance_cosine(embedding, ?) AS dist FROM vec_index ORDER BY dist ASC LIMIT ?",
		encodeFloat32Slice(queryVec), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []annHit
	for rows.Next() {
		var key string
		var dist float64
		if err := rows.Scan(&key, &dist); err != nil {
			continue
		}
		hits = append(hits, annHit{key: key, score: 1 - dist})
	}
	return hits, rows.Err()
}

func (idx *sqliteVecIndex) close() error {
	return idx.db.Close()
}

func encodeFloat32Slice(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}
