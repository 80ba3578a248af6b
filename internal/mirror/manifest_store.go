package mirror

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Beefybananas/mega-scraper/internal/db"
	"github.com/Beefybananas/mega-scraper/internal/utils"
)

const manifestSchema = `
CREATE TABLE IF NOT EXISTS manifest (
    path TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    size INTEGER NOT NULL,
    hash TEXT NOT NULL,
    mod_time TEXT NOT NULL, -- RFC3339
    ref TEXT NOT NULL,
    status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS manifest_meta (
    key TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_manifest_status ON manifest(status);
`

const generationKey = "generation"

// dbManifestEntry is the row shape; mod_time is stored as TEXT.
type dbManifestEntry struct {
	Path    string `db:"path"`
	Kind    string `db:"kind"`
	Size    int64  `db:"size"`
	Hash    string `db:"hash"`
	ModTime string `db:"mod_time"`
	Ref     string `db:"ref"`
	Status  string `db:"status"`
}

// ManifestStore persists the manifest in SQLite. Commit is safe to call
// from concurrent workers; writes funnel through a mutex on top of a
// single-connection pool.
type ManifestStore struct {
	db     *sqlx.DB
	dbPath string
	mu     sync.Mutex
}

func NewManifestStore(dbPath string) *ManifestStore {
	return &ManifestStore{dbPath: dbPath}
}

// Open connects to the database and initializes the schema. A file that
// exists but cannot be opened or prepared reports ErrManifestCorrupt.
func (s *ManifestStore) Open() error {
	if s.db != nil {
		return fmt.Errorf("manifest store already open")
	}

	existed := utils.FileExists(s.dbPath)

	conn, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		if existed {
			return fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
		}
		return fmt.Errorf("open manifest db: %w", err)
	}

	if _, err := conn.Exec(manifestSchema); err != nil {
		conn.Close()
		if existed {
			return fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
		}
		return fmt.Errorf("init manifest schema: %w", err)
	}

	s.db = conn
	return nil
}

func (s *ManifestStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Reset backs the database file up and reopens empty. Used when Load
// reports corruption; a full re-sync is safe, aborting is not.
func (s *ManifestStore) Reset() error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	backup := fmt.Sprintf("%s.%s.bak", s.dbPath, time.Now().Format("20060102150405"))
	if err := os.Rename(s.dbPath, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("backup corrupt manifest: %w", err)
	}
	slog.Warn("manifest reset", "backup", backup)
	return s.Open()
}

// Load reads the full manifest. No prior state is not an error: it
// returns an empty manifest with generation 0.
func (s *ManifestStore) Load() (*Manifest, error) {
	var gen uint64
	err := s.db.Get(&gen, "SELECT value FROM manifest_meta WHERE key = ?", generationKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: read generation: %v", ErrManifestCorrupt, err)
	}

	var rows []dbManifestEntry
	if err := s.db.Select(&rows, "SELECT path, kind, size, hash, mod_time, ref, status FROM manifest"); err != nil {
		return nil, fmt.Errorf("%w: read entries: %v", ErrManifestCorrupt, err)
	}

	m := NewManifest(gen)
	for _, row := range rows {
		entry, status, err := row.toEntry()
		if err != nil {
			return nil, fmt.Errorf("%w: row %q: %v", ErrManifestCorrupt, row.Path, err)
		}
		m.Set(entry, status)
	}
	return m, nil
}

// Commit durably records one entry's state. This is the incremental
// durability point: Pending is written before a download starts, Complete
// after the rename lands.
func (s *ManifestStore) Commit(e *Entry, status EntryStatus) error {
	if e == nil {
		return fmt.Errorf("cannot commit nil entry")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row := fromEntry(e, status)
	query := `INSERT OR REPLACE INTO manifest (path, kind, size, hash, mod_time, ref, status)
	          VALUES (:path, :kind, :size, :hash, :mod_time, :ref, :status)`
	if _, err := s.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("commit %q: %w", e.Path, err)
	}
	slog.Debug("manifest commit", "path", e.Path, "status", status)
	return nil
}

// Delete removes one entry, used when a prune lands.
func (s *ManifestStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM manifest WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	return nil
}

// Finalize atomically replaces the persisted manifest with m at run end.
func (s *ManifestStore) Finalize(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("finalize begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM manifest"); err != nil {
		return fmt.Errorf("finalize clear: %w", err)
	}
	for _, path := range m.Paths() {
		me, _ := m.Get(path)
		row := fromEntry(&me.Entry, me.Status)
		query := `INSERT INTO manifest (path, kind, size, hash, mod_time, ref, status)
		          VALUES (:path, :kind, :size, :hash, :mod_time, :ref, :status)`
		if _, err := tx.NamedExec(query, row); err != nil {
			return fmt.Errorf("finalize insert %q: %w", path, err)
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO manifest_meta (key, value) VALUES (?, ?)", generationKey, m.Generation); err != nil {
		return fmt.Errorf("finalize generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finalize commit: %w", err)
	}
	slog.Debug("manifest finalized", "generation", m.Generation, "entries", m.Len())
	return nil
}

func fromEntry(e *Entry, status EntryStatus) dbManifestEntry {
	return dbManifestEntry{
		Path:    e.Path,
		Kind:    string(e.Kind),
		Size:    e.Fingerprint.Size,
		Hash:    e.Fingerprint.Hash,
		ModTime: e.Fingerprint.ModTime.UTC().Format(time.RFC3339),
		Ref:     e.Ref,
		Status:  string(status),
	}
}

func (row dbManifestEntry) toEntry() (*Entry, EntryStatus, error) {
	modTime, err := time.Parse(time.RFC3339, row.ModTime)
	if err != nil {
		return nil, "", fmt.Errorf("parse mod_time %q: %w", row.ModTime, err)
	}
	kind := Kind(row.Kind)
	if kind != KindFile && kind != KindDir {
		return nil, "", fmt.Errorf("unknown kind %q", row.Kind)
	}
	status := EntryStatus(row.Status)
	if status != StatusComplete && status != StatusPending {
		return nil, "", fmt.Errorf("unknown status %q", row.Status)
	}
	return &Entry{
		Path: row.Path,
		Kind: kind,
		Fingerprint: Fingerprint{
			Size:    row.Size,
			Hash:    row.Hash,
			ModTime: modTime,
		},
		Ref: row.Ref,
	}, status, nil
}
