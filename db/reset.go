package db

import (
	"context"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Reset removes the given entries, or every entry when no keys are passed
func (db *DB) Reset(ctx context.Context, keys ...string) (int64, error) {
	deleteEntries := sb.SQLite.NewDeleteBuilder()
	deleteEntries.DeleteFrom("kv")
	if len(keys) > 0 {
		deleteEntries.Where(deleteEntries.In("key", sb.Flatten(keys)...))
	}
	sql, args := deleteEntries.Build()

	log.WithFields(log.Fields{
		"sql":  sql,
		"args": args,
	}).Info("Resetting state")

	res, err := db.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
