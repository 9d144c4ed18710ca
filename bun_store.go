package session

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ Store = (*BunStore)(nil)

// StoreEntry is the persisted key/value row backing BunStore.
type StoreEntry struct {
	bun.BaseModel `bun:"table:session_entries,alias:se"`
	Key           string `bun:"key,pk" json:"key"`
	Value         string `bun:"value,notnull" json:"value"`
}

// BunStore is a durable Store backed by a SQLite table through bun. Each
// write is a single upsert, so readers never observe a partial value. It
// does not implement ChangeNotifier; hosts that need cross-process
// notifications should use FileStore instead.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wraps an existing bun.DB. It creates the backing table when
// missing.
func NewBunStore(db *bun.DB) (*BunStore, error) {
	s := &BunStore{db: db}
	if _, err := db.NewCreateTable().
		Model((*StoreEntry)(nil)).
		IfNotExists().
		Exec(context.Background()); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create session store table")
	}
	return s, nil
}

// OpenBunStore opens a SQLite database at dsn and returns a BunStore over
// it. Use ":memory:" for an ephemeral store.
func OpenBunStore(dsn string) (*BunStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open session store database")
	}
	return NewBunStore(bun.NewDB(sqldb, sqlitedialect.New()))
}

func (s *BunStore) Get(key string) (string, bool, error) {
	entry := &StoreEntry{}
	err := s.db.NewSelect().
		Model(entry).
		Where("se.key = ?", key).
		Scan(context.Background())
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read session store entry")
	}
	return entry.Value, true, nil
}

func (s *BunStore) Set(key, value string) error {
	entry := &StoreEntry{Key: key, Value: value}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(context.Background())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write session store entry")
	}
	return nil
}

func (s *BunStore) Delete(key string) error {
	_, err := s.db.NewDelete().
		Model((*StoreEntry)(nil)).
		Where("se.key = ?", key).
		Exec(context.Background())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete session store entry")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *BunStore) Close() error {
	return s.db.Close()
}
