// Package sqlite implements the persistence contract over an embedded
// SQLite database (modernc.org/sqlite, pure Go, no CGO).
//
// Each logical collection maps to one physical table, provisioned on first
// use with the layout:
//
//	(id TEXT PRIMARY KEY, meta TEXT NOT NULL, data TEXT NOT NULL,
//	 createdAt TEXT NOT NULL, updatedAt TEXT NOT NULL)
//
// meta and data are JSON-serialized; timestamps are RFC 3339 so lexical
// order matches chronological order. Every operation is a single statement
// at the engine's default isolation; concurrent writers to the same id
// across processes are not coordinated beyond that.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/agentstore/pkg/errs"
	"github.com/fyrsmithlabs/agentstore/pkg/persistence"
)

// collectionNamePattern validates table names before they are interpolated
// into SQL. Pattern: lowercase letters, numbers, underscores, 1-64 chars.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName rejects names unsafe to use as table identifiers.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			fmt.Sprintf("collection name must match ^[a-z0-9_]{1,64}$, got %q", name))
	}
	return nil
}

// Config holds configuration for the SQLite backend.
type Config struct {
	// Dir is the directory holding the database file. Created if missing.
	// Default: ".".
	Dir string `koanf:"dir"`

	// Name is the database file name without extension.
	// Default: "agentstore".
	Name string `koanf:"name"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Name == "" {
		c.Name = "agentstore"
	}
}

// Store is a Persistor over one table of a SQLite file. D and M must be
// JSON-serializable.
type Store[D, M any] struct {
	db    *sql.DB
	table string
}

// Open opens (creating if necessary) the database file from cfg and
// provisions the table for collection. Multiple Stores may share one file,
// one per collection.
func Open[D, M any](cfg Config, collection string) (*Store[D, M], error) {
	cfg.ApplyDefaults()

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IDStoreConnection, errs.DomainStorage, errs.CategorySystem,
			"creating database directory", err).WithDetail("dir", cfg.Dir)
	}

	path := filepath.Join(cfg.Dir, cfg.Name+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.IDStoreConnection, errs.DomainStorage, errs.CategoryThirdParty,
			"opening sqlite database", err).WithDetail("path", path)
	}

	s := &Store[D, M]{db: db, table: collection}
	if err := s.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store[D, M]) createTable() error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		meta TEXT NOT NULL,
		data TEXT NOT NULL,
		createdAt TEXT NOT NULL,
		updatedAt TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.Exec(stmt); err != nil {
		return errs.Wrap(errs.IDCollectionCreate, errs.DomainStorage, errs.CategoryThirdParty,
			"provisioning collection table", err).WithDetail("collection", s.table)
	}
	return nil
}

// Insert creates or overwrites the record keyed by id. On conflict the new
// meta/data win; createdAt is preserved from the original row.
func (s *Store[D, M]) Insert(ctx context.Context, id string, meta M, data D) error {
	metaJSON, dataJSON, err := encode(meta, data)
	if err != nil {
		return err
	}

	// Fixed-width fraction keeps the text column lexicographically ordered;
	// RFC3339Nano trims trailing zeros and would misorder.
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z")
	stmt := fmt.Sprintf(`INSERT INTO %s (id, meta, data, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			meta = excluded.meta,
			data = excluded.data,
			updatedAt = excluded.updatedAt`, s.table)

	if _, err := s.db.ExecContext(ctx, stmt, id, metaJSON, dataJSON, now, now); err != nil {
		return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"inserting record", err).WithDetail("collection", s.table).WithDetail("id", id)
	}
	return nil
}

// Find returns the record for id; found is false when the id is unknown.
func (s *Store[D, M]) Find(ctx context.Context, id string) (persistence.Item[D, M], bool, error) {
	var item persistence.Item[D, M]

	stmt := fmt.Sprintf(`SELECT meta, data FROM %s WHERE id = ?`, s.table)
	var metaJSON, dataJSON []byte
	err := s.db.QueryRowContext(ctx, stmt, id).Scan(&metaJSON, &dataJSON)
	if err == sql.ErrNoRows {
		return item, false, nil
	}
	if err != nil {
		return item, false, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"finding record", err).WithDetail("collection", s.table).WithDetail("id", id)
	}

	if err := json.Unmarshal(metaJSON, &item.Meta); err != nil {
		return item, false, errs.Wrap(errs.IDSerializeFailed, errs.DomainStorage, errs.CategorySystem,
			"decoding record meta", err).WithDetail("id", id)
	}
	if err := json.Unmarshal(dataJSON, &item.Data); err != nil {
		return item, false, errs.Wrap(errs.IDSerializeFailed, errs.DomainStorage, errs.CategorySystem,
			"decoding record data", err).WithDetail("id", id)
	}
	return item, true, nil
}

// Update overwrites the record's meta and data. An unknown id is inserted:
// the contract treats update-of-absent as insert rather than an error.
func (s *Store[D, M]) Update(ctx context.Context, id string, meta M, data D) error {
	return s.Insert(ctx, id, meta, data)
}

// Remove deletes the record if present; absent ids are a no-op.
func (s *Store[D, M]) Remove(ctx context.Context, id string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt, id); err != nil {
		return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"removing record", err).WithDetail("collection", s.table).WithDetail("id", id)
	}
	return nil
}

// List returns every known id with its meta projection, most recently
// updated first with ties broken by id. Data is never read, so listing
// stays O(records) without payload deserialization.
func (s *Store[D, M]) List(ctx context.Context) ([]persistence.Entry[M], error) {
	stmt := fmt.Sprintf(`SELECT id, meta FROM %s ORDER BY updatedAt DESC, id ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"listing records", err).WithDetail("collection", s.table)
	}
	defer rows.Close()

	var entries []persistence.Entry[M]
	for rows.Next() {
		var entry persistence.Entry[M]
		var metaJSON []byte
		if err := rows.Scan(&entry.ID, &metaJSON); err != nil {
			return nil, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategoryThirdParty,
				"scanning record row", err).WithDetail("collection", s.table)
		}
		if err := json.Unmarshal(metaJSON, &entry.Meta); err != nil {
			return nil, errs.Wrap(errs.IDSerializeFailed, errs.DomainStorage, errs.CategorySystem,
				"decoding record meta", err).WithDetail("id", entry.ID)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"iterating record rows", err).WithDetail("collection", s.table)
	}
	return entries, nil
}

// Close closes the underlying database handle.
func (s *Store[D, M]) Close() error {
	return s.db.Close()
}

func encode[D, M any](meta M, data D) (metaJSON, dataJSON []byte, err error) {
	metaJSON, err = json.Marshal(meta)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IDSerializeFailed, errs.DomainStorage, errs.CategoryUser,
			"encoding record meta", err)
	}
	dataJSON, err = json.Marshal(data)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IDSerializeFailed, errs.DomainStorage, errs.CategoryUser,
			"encoding record data", err)
	}
	return metaJSON, dataJSON, nil
}

var _ persistence.Persistor[struct{}, struct{}] = (*Store[struct{}, struct{}])(nil)
