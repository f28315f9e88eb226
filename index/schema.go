package index

import "fmt"

// schemaSQL is the DDL shared by all collections. Each collection also
// owns a vec0 table created by vecTableSQL.
const schemaSQL = `
-- Named collections; a run indexes into exactly one.
CREATE TABLE IF NOT EXISTS collections (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    embedding_dim INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Content records as extracted
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY,
    collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    kind TEXT NOT NULL,
    page INTEGER NOT NULL,
    text TEXT NOT NULL,
    detail_type TEXT,
    detail JSON
);

-- Indexable fragments of records
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY,
    collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    record_id INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    content TEXT NOT NULL,
    token_count INTEGER,
    content_hash TEXT NOT NULL
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
    content,
    content='nodes',
    content_rowid='id',
    tokenize='porter unicode61'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS nodes_ai AFTER INSERT ON nodes BEGIN
    INSERT INTO nodes_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS nodes_ad AFTER DELETE ON nodes BEGIN
    INSERT INTO nodes_fts(nodes_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS nodes_au AFTER UPDATE ON nodes BEGIN
    INSERT INTO nodes_fts(nodes_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO nodes_fts(rowid, content) VALUES (new.id, new.content);
END;

-- Indexes
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection_id);
CREATE INDEX IF NOT EXISTS idx_nodes_collection ON nodes(collection_id);
CREATE INDEX IF NOT EXISTS idx_nodes_record ON nodes(record_id);
`

// vecTable names the vector table of a collection.
func vecTable(collectionID int64) string {
	return fmt.Sprintf("vec_nodes_%d", collectionID)
}

// vecTableSQL returns the DDL of a collection's vector table.
func vecTableSQL(collectionID int64, dim int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
    node_id INTEGER PRIMARY KEY,
    embedding float[%d]
)`, vecTable(collectionID), dim)
}
