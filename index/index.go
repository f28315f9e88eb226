// Package index stores content records in SQLite, grouped into named
// collections, with FTS5 full-text and sqlite-vec vector lookup over their
// chunked nodes.
package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	ErrCollectionNotFound = errors.New("index: collection not found")
	ErrCollectionExists   = errors.New("index: collection already exists")
	ErrDimension          = errors.New("index: embedding dimension mismatch")
)

// Store wraps the SQLite database holding every collection.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema. embeddingDim is the vector size of collections
// created through this Store.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Collection operations ---

// Collection is a row of the collections table.
type Collection struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	EmbeddingDim int    `json:"embedding_dim"`
	CreatedAt    string `json:"created_at"`
	Records      int    `json:"records"`
}

// CollectionExists reports whether a collection named name exists.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.collectionID(ctx, name)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CreateCollection creates an empty collection. It fails with
// ErrCollectionExists if the name is taken.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO collections (name, embedding_dim) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
			name, s.embeddingDim)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrCollectionExists, name)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, vecTableSQL(id, s.embeddingDim)); err != nil {
			return fmt.Errorf("creating vector table: %w", err)
		}
		return nil
	})
}

// DeleteCollection removes a collection with its records, nodes and
// vectors. It fails with ErrCollectionNotFound if there is none.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+vecTable(id)); err != nil {
			return fmt.Errorf("dropping vector table: %w", err)
		}
		// Nodes first so the FTS delete trigger fires per row.
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE collection_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id)
		return err
	})
}

// Collections lists all collections by name with their record counts.
func (s *Store) Collections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.embedding_dim, c.created_at,
			(SELECT COUNT(*) FROM records r WHERE r.collection_id = c.id)
		FROM collections c
		ORDER BY c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.EmbeddingDim, &c.CreatedAt, &c.Records); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) collectionID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM collections WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return id, err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func logRebuild(name string, existed bool) {
	if existed {
		slog.Info("index: collection exists, recreating", "collection", name)
		return
	}
	slog.Info("index: creating collection", "collection", name)
}
