package database

import (
	"database/sql"
	"time"
)

// Timestamps are stored as unix seconds so that SQL comparisons between
// bound parameters and stored values are exact regardless of driver
// formatting. All values are UTC.

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromUnix(n int64) time.Time {
	return time.Unix(n, 0).UTC()
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}
