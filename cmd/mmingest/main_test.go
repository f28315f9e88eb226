//go:build cgo

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/mmingest/record"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MMINGEST_OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("MMINGEST_DB_PATH", filepath.Join(dir, "index.db"))
	t.Setenv("MMINGEST_EMBEDDING_DIM", "4")
	t.Setenv("MMINGEST_LOG_LEVEL", "error")
	return dir
}

func TestIngestNoIndexPrintsRecords(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Valve inspection notes."), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "ingest", "--offline", "--no-index", path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var recs []record.Record
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("output is not JSON records: %v\n%s", err, out)
	}
	if len(recs) != 1 || recs[0].Text != "Valve inspection notes." {
		t.Errorf("records = %+v", recs)
	}
}

func TestIngestThenListRecords(t *testing.T) {
	dir := setupEnv(t)
	docs := filepath.Join(dir, "docs")
	if err := os.Mkdir(docs, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, text := range map[string]string{"a.txt": "first", "b.txt": "second"} {
		if err := os.WriteFile(filepath.Join(docs, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := run(t, "ingest-dir", "--offline", "--collection", "notes", docs)
	if err != nil {
		t.Fatalf("ingest-dir: %v", err)
	}
	if !strings.Contains(out, `2 records`) || !strings.Contains(out, `"notes"`) {
		t.Errorf("summary = %q", out)
	}

	out, err = run(t, "records", "--collection", "notes")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	var recs []record.Record
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("output is not JSON records: %v\n%s", err, out)
	}
	if len(recs) != 2 || recs[0].Text != "first" || recs[1].Text != "second" {
		t.Errorf("records = %+v", recs)
	}
}

func TestIngestRequiresFiles(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "ingest", "--offline"); err == nil {
		t.Fatal("expected an argument error")
	}
}
