// Package catalog stores the table definitions the plan API needs before it
// can invoke the pruner: each table's column Schema and its PartitionSchema
// (hash dimensions, range columns, per-range overrides). It is backed by
// SQLite for local durability and can push/pull a compressed snapshot of the
// whole catalog to object storage so a fleet of planner instances converges
// on the same definitions without a network round trip per lookup.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	prunererrors "github.com/tabletpruner/partitionpruner/internal/errors"
	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/storage"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// TableDefinition is everything the pruner needs to know about one table.
type TableDefinition struct {
	Name            string
	Schema          types.Schema
	PartitionSchema partitionschema.PartitionSchema
	Version         int64
	UpdatedAt       time.Time
}

// Store manages table definitions in a local catalog.db. A single writer
// connection serializes mutations; a small read pool serves concurrent plan
// lookups, mirroring the split-connection pattern used for heavier manifest
// workloads.
type Store struct {
	db     *sql.DB
	readDB *sql.DB
	mu     sync.Mutex

	ulids types.ULIDGenerator
}

// Open creates or opens a catalog database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, "failed to open catalog database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, "failed to open catalog read database", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, readDB: readDB}
	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const createTablesSQL = `
CREATE TABLE IF NOT EXISTS tables (
    name TEXT PRIMARY KEY,
    schema_json TEXT NOT NULL,
    partition_schema_json TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL
)`
	if _, err := s.db.Exec(createTablesSQL); err != nil {
		return prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, "failed to initialize catalog schema", err)
	}
	return nil
}

// PutTable inserts or replaces a table definition, incrementing its version.
func (s *Store) PutTable(ctx context.Context, name string, schema types.Schema, partSchema partitionschema.PartitionSchema) (*TableDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, prunererrors.NewValidationError(prunererrors.CodeInvalidSchema, "failed to marshal schema: "+err.Error())
	}
	partSchemaJSON, err := json.Marshal(partSchema)
	if err != nil {
		return nil, prunererrors.NewValidationError(prunererrors.CodeInvalidSchema, "failed to marshal partition schema: "+err.Error())
	}

	var currentVersion int64
	err = s.db.QueryRowContext(ctx, "SELECT version FROM tables WHERE name = ?", name).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return nil, prunererrors.NewCatalogError(prunererrors.CodeWriteConflict, "failed to read current table version", err)
	}
	nextVersion := currentVersion + 1
	now := time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tables (name, schema_json, partition_schema_json, version, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   schema_json = excluded.schema_json,
		   partition_schema_json = excluded.partition_schema_json,
		   version = excluded.version,
		   updated_at = excluded.updated_at`,
		name, string(schemaJSON), string(partSchemaJSON), nextVersion, now.Unix(),
	)
	if err != nil {
		return nil, prunererrors.NewCatalogError(prunererrors.CodeWriteConflict, "failed to write table definition", err)
	}

	return &TableDefinition{Name: name, Schema: schema, PartitionSchema: partSchema, Version: nextVersion, UpdatedAt: now}, nil
}

// GetTable retrieves a table definition by name.
func (s *Store) GetTable(ctx context.Context, name string) (*TableDefinition, error) {
	row := s.readDB.QueryRowContext(ctx,
		"SELECT schema_json, partition_schema_json, version, updated_at FROM tables WHERE name = ?", name)
	return s.scanTable(name, row)
}

func (s *Store) scanTable(name string, row *sql.Row) (*TableDefinition, error) {
	var schemaJSON, partSchemaJSON string
	var version, updatedAtUnix int64

	if err := row.Scan(&schemaJSON, &partSchemaJSON, &version, &updatedAtUnix); err != nil {
		if err == sql.ErrNoRows {
			return nil, prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, fmt.Sprintf("table %q not found", name), err)
		}
		return nil, prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, "failed to scan table definition", err)
	}

	def := &TableDefinition{Name: name, Version: version, UpdatedAt: time.Unix(updatedAtUnix, 0)}
	if err := json.Unmarshal([]byte(schemaJSON), &def.Schema); err != nil {
		return nil, prunererrors.NewCatalogError(prunererrors.CodeCorruptSnapshot, "failed to unmarshal schema", err)
	}
	if err := json.Unmarshal([]byte(partSchemaJSON), &def.PartitionSchema); err != nil {
		return nil, prunererrors.NewCatalogError(prunererrors.CodeCorruptSnapshot, "failed to unmarshal partition schema", err)
	}
	return def, nil
}

// ListTables returns the names of every registered table, sorted by name.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, "SELECT name FROM tables ORDER BY name")
	if err != nil {
		return nil, prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, "failed to list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, "failed to scan table name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteTable removes a table definition.
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM tables WHERE name = ?", name)
	if err != nil {
		return prunererrors.NewCatalogError(prunererrors.CodeWriteConflict, "failed to delete table", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, fmt.Sprintf("table %q not found", name), nil)
	}
	return nil
}

// Close closes the catalog's database connections.
func (s *Store) Close() error {
	if err := s.readDB.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// snapshotFile is the JSON envelope pushed to and pulled from object
// storage, snappy-compressed on the wire.
type snapshotFile struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Tables    []TableDefinition `json:"tables"`
}

// PushSnapshot serializes every table definition, compresses it with
// snappy, and uploads it to object storage under prefix/<snapshot-id>.json.snappy.
// The returned ULID both names the object and, being time-ordered, lets a
// reader find the latest snapshot by listing the prefix and taking the max.
func (s *Store) PushSnapshot(ctx context.Context, objStore storage.ObjectStorage, prefix string) (types.ULID, error) {
	names, err := s.ListTables(ctx)
	if err != nil {
		return types.ULID{}, err
	}

	defs := make([]TableDefinition, 0, len(names))
	for _, name := range names {
		def, err := s.GetTable(ctx, name)
		if err != nil {
			return types.ULID{}, err
		}
		defs = append(defs, *def)
	}

	id, err := s.ulids.Generate()
	if err != nil {
		return types.ULID{}, prunererrors.NewInternalError("failed to generate snapshot id", err)
	}

	snap := snapshotFile{ID: id.String(), CreatedAt: time.Now(), Tables: defs}
	payload, err := json.Marshal(snap)
	if err != nil {
		return types.ULID{}, prunererrors.NewCatalogError(prunererrors.CodeCorruptSnapshot, "failed to marshal snapshot", err)
	}
	compressed := snappy.Encode(nil, payload)

	tmp, err := os.CreateTemp("", "catalog-snapshot-*.snappy")
	if err != nil {
		return types.ULID{}, prunererrors.NewInternalError("failed to create snapshot temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return types.ULID{}, prunererrors.NewInternalError("failed to write snapshot temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return types.ULID{}, prunererrors.NewInternalError("failed to close snapshot temp file", err)
	}

	objectPath := snapshotObjectPath(prefix, id)
	if int64(len(compressed)) >= storage.DefaultMultipartConfig().PartSize {
		if _, err := objStore.UploadMultipart(ctx, tmp.Name(), objectPath); err != nil {
			return types.ULID{}, prunererrors.NewStorageError(prunererrors.CodeUploadFailed, "failed to multipart-upload catalog snapshot", err)
		}
	} else if err := objStore.Upload(ctx, tmp.Name(), objectPath); err != nil {
		return types.ULID{}, prunererrors.NewStorageError(prunererrors.CodeUploadFailed, "failed to upload catalog snapshot", err)
	}

	return id, nil
}

// PullSnapshot downloads the snapshot named id from object storage,
// decompresses and decodes it, and writes each of its table definitions
// into the local catalog via PutTable (which bumps the local version).
// Local tables that the snapshot does not contain are left in place.
func (s *Store) PullSnapshot(ctx context.Context, objStore storage.ObjectStorage, prefix string, id types.ULID) error {
	objectPath := snapshotObjectPath(prefix, id)

	if ok, err := objStore.Exists(ctx, objectPath); err != nil {
		return prunererrors.NewStorageError(prunererrors.CodeDownloadFailed, "failed to check catalog snapshot existence", err)
	} else if !ok {
		return prunererrors.NewCatalogError(prunererrors.CodeSchemaNotFound, fmt.Sprintf("snapshot %s not found under %s", id, prefix), nil)
	}

	tmp, err := os.CreateTemp("", "catalog-snapshot-pull-*.snappy")
	if err != nil {
		return prunererrors.NewInternalError("failed to create snapshot temp file", err)
	}
	defer os.Remove(tmp.Name())
	tmp.Close()

	if err := objStore.Download(ctx, objectPath, tmp.Name()); err != nil {
		switch {
		case errors.Is(err, storage.ErrObjectNotFound):
			// Lost the race with a concurrent PruneSnapshots: the object
			// existed when Exists was checked above but is gone now.
			return prunererrors.NewStorageError(prunererrors.CodeObjectNotFound, fmt.Sprintf("snapshot %s vanished from %s mid-pull", id, prefix), err)
		case errors.Is(err, storage.ErrChecksumMismatch):
			// The bytes that arrived don't match what was uploaded; decoding
			// them would either fail outright or, worse, silently restore a
			// corrupted catalog. Surface it distinctly from a transport
			// failure so a retry loop knows a second attempt isn't doomed
			// the way a permanent corruption at rest would be.
			return prunererrors.NewStorageError(prunererrors.CodeChecksumMismatch, fmt.Sprintf("snapshot %s failed checksum verification", id), err)
		default:
			return prunererrors.NewStorageError(prunererrors.CodeDownloadFailed, "failed to download catalog snapshot", err)
		}
	}

	compressed, err := os.ReadFile(tmp.Name())
	if err != nil {
		return prunererrors.NewInternalError("failed to read downloaded snapshot", err)
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return prunererrors.NewCatalogError(prunererrors.CodeCorruptSnapshot, "failed to decompress snapshot", err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(payload, &snap); err != nil {
		return prunererrors.NewCatalogError(prunererrors.CodeCorruptSnapshot, "failed to unmarshal snapshot", err)
	}

	for _, def := range snap.Tables {
		if _, err := s.PutTable(ctx, def.Name, def.Schema, def.PartitionSchema); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshotID lists prefix and returns the lexicographically greatest
// snapshot id found, which is also the most recent since ULIDs are
// time-ordered.
func LatestSnapshotID(ctx context.Context, objStore storage.ObjectStorage, prefix string) (types.ULID, bool, error) {
	paths, err := objStore.ListObjects(ctx, prefix)
	if err != nil {
		return types.ULID{}, false, prunererrors.NewStorageError(prunererrors.CodeDownloadFailed, "failed to list catalog snapshots", err)
	}

	var latest string
	for _, p := range paths {
		id := snapshotIDFromObjectPath(prefix, p)
		if id == "" {
			continue
		}
		if id > latest {
			latest = id
		}
	}
	if latest == "" {
		return types.ULID{}, false, nil
	}

	ulid, err := types.ParseULID(latest)
	if err != nil {
		return types.ULID{}, false, prunererrors.NewCatalogError(prunererrors.CodeCorruptSnapshot, "failed to parse snapshot id from object path", err)
	}
	return ulid, true, nil
}

// PruneSnapshots deletes every snapshot under prefix except the keep most
// recent ones, so a planner fleet that pushes snapshots periodically
// doesn't accumulate them forever. It returns the object paths it
// deleted.
func PruneSnapshots(ctx context.Context, objStore storage.ObjectStorage, prefix string, keep int) ([]string, error) {
	paths, err := objStore.ListObjects(ctx, prefix)
	if err != nil {
		return nil, prunererrors.NewStorageError(prunererrors.CodeDownloadFailed, "failed to list catalog snapshots", err)
	}

	var snapshots []string
	for _, p := range paths {
		if snapshotIDFromObjectPath(prefix, p) != "" {
			snapshots = append(snapshots, p)
		}
	}
	sort.Strings(snapshots)

	if keep < 0 {
		keep = 0
	}
	if len(snapshots) <= keep {
		return nil, nil
	}

	stale := snapshots[:len(snapshots)-keep]
	deleted := make([]string, 0, len(stale))
	for _, objectPath := range stale {
		if err := objStore.Delete(ctx, objectPath); err != nil {
			return deleted, prunererrors.NewStorageError(prunererrors.CodeDeleteFailed, fmt.Sprintf("failed to delete stale snapshot %s", objectPath), err)
		}
		deleted = append(deleted, objectPath)
	}
	return deleted, nil
}

func snapshotObjectPath(prefix string, id types.ULID) string {
	return prefix + "/" + id.String() + ".json.snappy"
}

func snapshotIDFromObjectPath(prefix, objectPath string) string {
	const suffix = ".json.snappy"
	want := prefix + "/"
	if !strings.HasPrefix(objectPath, want) || !strings.HasSuffix(objectPath, suffix) {
		return ""
	}
	base := strings.TrimPrefix(objectPath, want)
	return strings.TrimSuffix(base, suffix)
}
