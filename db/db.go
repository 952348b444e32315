package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"socialfeed/store"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 30 * time.Second

// DB is a key-value store on top of a SQLite file. It implements store.KV.
type DB struct {
	db *sql.DB
}

var _ store.KV = (*DB)(nil)

// Open migrates the database at path and returns a connected store
func Open(path string) (*DB, error) {
	if err := Migrate(path); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	conn, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &DB{db: conn}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("value").From("kv").Where(sb.Equal("key", key))
	query, args := sb.Build()

	var value string
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query error: %w", err)
	}
	return value, true, nil
}

func (db *DB) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto("kv").Cols("key", "value", "updated_at").Values(key, value, time.Now().Unix())
	query, args := ib.Build()

	log.WithFields(log.Fields{
		"key":   key,
		"bytes": len(value),
	}).Debug("Writing entry")

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func (db *DB) Clear(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	dlb := sqlbuilder.SQLite.NewDeleteBuilder()
	dlb.DeleteFrom("kv").Where(dlb.Equal("key", key))
	query, args := dlb.Build()

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// UpdatedAt returns when key was last written, zero time if it is absent
func (db *DB) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("updated_at").From("kv").Where(sb.Equal("key", key))
	query, args := sb.Build()

	var ts int64
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query error: %w", err)
	}
	return time.Unix(ts, 0), nil
}
