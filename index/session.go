package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/mmingest/chunker"
	"github.com/brunobiangulo/mmingest/record"
)

// embedBatch is the number of nodes embedded per request.
const embedBatch = 32

// Embedder produces vectors for texts. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Session indexes records into one named collection. It is created per
// request and holds no state beyond its collection name and collaborators.
type Session struct {
	store *Store
	name  string

	// Embedder embeds nodes on Add. Without one, nodes are stored for
	// text search only.
	Embedder Embedder
	// QueryEmbedder embeds search queries; Embedder is used when nil.
	QueryEmbedder Embedder
	Chunker       *chunker.Chunker
}

// Session returns a session on the named collection.
func (s *Store) Session(name string, embedder Embedder, ch *chunker.Chunker) *Session {
	if ch == nil {
		ch = chunker.New(chunker.Config{})
	}
	return &Session{store: s, name: name, Embedder: embedder, Chunker: ch}
}

// Name returns the collection name.
func (se *Session) Name() string { return se.name }

// Rebuild empties the collection: an existing collection is deleted and
// recreated, a missing one is created.
func (se *Session) Rebuild(ctx context.Context) error {
	exists, err := se.store.CollectionExists(ctx, se.name)
	if err != nil {
		return err
	}
	logRebuild(se.name, exists)
	if exists {
		if err := se.store.DeleteCollection(ctx, se.name); err != nil {
			return err
		}
	}
	return se.store.CreateCollection(ctx, se.name)
}

// Add chunks and stores records, embedding their nodes when an Embedder is
// set. The collection is created if missing. It returns the node count.
func (se *Session) Add(ctx context.Context, records []record.Record) (int, error) {
	id, err := se.ensure(ctx)
	if err != nil {
		return 0, err
	}

	nodes := se.Chunker.Split(records)
	vectors, err := se.embed(ctx, nodes)
	if err != nil {
		return 0, err
	}

	err = se.store.inTx(ctx, func(tx *sql.Tx) error {
		recStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (collection_id, source, kind, page, text, detail_type, detail,
				source_document, source_page, source_element, source_ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer recStmt.Close()

		nodeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO nodes (collection_id, record_id, position, content, token_count, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer nodeStmt.Close()

		vecStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO "+vecTable(id)+" (node_id, embedding) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		recordIDs := make(map[int]int64, len(records))
		for i, r := range records {
			var (
				detailType string
				detail     []byte
			)
			if r.Detail != nil {
				detailType = record.DetailType(r.Detail)
				if detail, err = json.Marshal(r.Detail); err != nil {
					return err
				}
			}
			res, err := recStmt.ExecContext(ctx, id, r.Source.String(), string(r.Kind()), r.Page, r.Text, detailType, string(detail),
				r.Source.Document, r.Source.Page, string(r.Source.Element), r.Source.Ordinal)
			if err != nil {
				return err
			}
			if recordIDs[i], err = res.LastInsertId(); err != nil {
				return err
			}
		}

		for i, n := range nodes {
			res, err := nodeStmt.ExecContext(ctx, id, recordIDs[n.RecordIndex], n.Index, n.Text, n.TokenCount, n.ContentHash)
			if err != nil {
				return err
			}
			if vectors == nil {
				continue
			}
			nodeID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := vecStmt.ExecContext(ctx, nodeID, serializeFloat32(vectors[i])); err != nil {
				return fmt.Errorf("storing embedding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("index: adding records: %w", err)
	}

	slog.Info("index: records added", "collection", se.name, "records", len(records), "nodes", len(nodes))
	return len(nodes), nil
}

func (se *Session) embed(ctx context.Context, nodes []chunker.Node) ([][]float32, error) {
	if se.Embedder == nil || len(nodes) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(nodes))
	for start := 0; start < len(nodes); start += embedBatch {
		end := min(start+embedBatch, len(nodes))
		texts := make([]string, 0, end-start)
		for _, n := range nodes[start:end] {
			texts = append(texts, n.Text)
		}
		vecs, err := se.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("index: embedding nodes: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("index: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for _, v := range vecs {
			if len(v) != se.store.embeddingDim {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(v), se.store.embeddingDim)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (se *Session) ensure(ctx context.Context) (int64, error) {
	id, err := se.store.collectionID(ctx, se.name)
	if errors.Is(err, ErrCollectionNotFound) {
		if err := se.store.CreateCollection(ctx, se.name); err != nil && !errors.Is(err, ErrCollectionExists) {
			return 0, err
		}
		return se.store.collectionID(ctx, se.name)
	}
	return id, err
}

// Records returns the collection's records in insertion order.
func (se *Session) Records(ctx context.Context) ([]record.Record, error) {
	id, err := se.store.collectionID(ctx, se.name)
	if err != nil {
		return nil, err
	}
	rows, err := se.store.db.QueryContext(ctx, `
		SELECT `+recordColumns("")+`
		FROM records WHERE collection_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// recordSelect lists the columns scanRecord reads; {p} is the table prefix.
const recordSelect = `{p}source, {p}page, {p}text,
			COALESCE({p}detail_type, ''), COALESCE({p}detail, ''),
			{p}source_document, COALESCE({p}source_page, 0),
			COALESCE({p}source_element, ''), COALESCE({p}source_ordinal, 0)`

func recordColumns(prefix string) string {
	return strings.ReplaceAll(recordSelect, "{p}", prefix)
}

func scanRecord(row scanner, extra ...any) (record.Record, error) {
	var (
		source, text, detailType, detail string
		page                             int
		doc                              sql.NullString
		id                               record.SourceID
		element                          string
	)
	dest := []any{&source, &page, &text, &detailType, &detail, &doc, &id.Page, &element, &id.Ordinal}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return record.Record{}, err
	}
	if doc.Valid {
		id.Document, id.Element = doc.String, record.Element(element)
	} else {
		// Rows written before the source columns existed.
		parsed, err := record.ParseSourceID(source)
		if err != nil {
			return record.Record{}, err
		}
		id = parsed
	}
	d, err := record.DecodeDetail(detailType, []byte(detail))
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{Text: text, Source: id, Page: page, Detail: d}, nil
}

// Hit is a node matched by a search, with the record it came from.
type Hit struct {
	Record record.Record `json:"record"`
	Node   string        `json:"node"`
	Score  float64       `json:"score"`
}

// Search returns the k nodes nearest to query by embedding distance.
// Score is 1 - distance.
func (se *Session) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	embedder := se.QueryEmbedder
	if embedder == nil {
		embedder = se.Embedder
	}
	if embedder == nil {
		return nil, fmt.Errorf("index: search needs an embedder")
	}
	id, err := se.store.collectionID(ctx, se.name)
	if err != nil {
		return nil, err
	}

	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("index: embedder returned %d vectors for 1 query", len(vecs))
	}

	rows, err := se.store.db.QueryContext(ctx, `
		SELECT `+recordColumns("r.")+`,
			n.content, v.distance
		FROM `+vecTable(id)+` v
		JOIN nodes n ON n.id = v.node_id
		JOIN records r ON r.id = n.record_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(vecs[0]), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h        Hit
			distance float64
		)
		if h.Record, err = scanRecord(rows, &h.Node, &distance); err != nil {
			return nil, err
		}
		h.Score = 1.0 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// TextSearch runs an FTS5 query over the collection's nodes, best match
// first.
func (se *Session) TextSearch(ctx context.Context, query string, limit int) ([]Hit, error) {
	id, err := se.store.collectionID(ctx, se.name)
	if err != nil {
		return nil, err
	}
	rows, err := se.store.db.QueryContext(ctx, `
		SELECT `+recordColumns("r.")+`,
			n.content, f.rank
		FROM nodes_fts f
		JOIN nodes n ON n.id = f.rowid
		JOIN records r ON r.id = n.record_id
		WHERE nodes_fts MATCH ? AND n.collection_id = ?
		ORDER BY f.rank
		LIMIT ?
	`, query, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h    Hit
			rank float64
		)
		if h.Record, err = scanRecord(rows, &h.Node, &rank); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
