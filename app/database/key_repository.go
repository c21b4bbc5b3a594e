package database

import (
	"database/sql"
	"fmt"
	"time"
)

// KeyRepository handles database operations for access keys
type KeyRepository struct {
	db *DB
}

func NewKeyRepository(db *DB) *KeyRepository {
	return &KeyRepository{db: db}
}

const keyColumns = `id, content, enabled_at, namespace, timezone,
	first_send_start, first_send_end, layout_id, created_at, updated_at`

func scanKey(row interface{ Scan(...any) error }) (*AccessKey, error) {
	var key AccessKey
	var enabledAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&key.ID, &key.Content, &enabledAt, &key.Namespace, &key.Timezone,
		&key.FirstSendStart, &key.FirstSendEnd, &key.LayoutID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	key.EnabledAt = fromNullUnix(enabledAt)
	key.CreatedAt = fromUnix(createdAt)
	key.UpdatedAt = fromUnix(updatedAt)
	return &key, nil
}

func (r *KeyRepository) GetKey(id int64) (*AccessKey, error) {
	key, err := scanKey(r.db.QueryRow(`
		SELECT `+keyColumns+` FROM access_keys WHERE id = ?
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access key: %w", err)
	}
	return key, nil
}

func (r *KeyRepository) GetKeyByContent(content string) (*AccessKey, error) {
	key, err := scanKey(r.db.QueryRow(`
		SELECT `+keyColumns+` FROM access_keys WHERE content = ?
	`, content))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access key by content: %w", err)
	}
	return key, nil
}

func (r *KeyRepository) listKeys(query string, args ...any) ([]AccessKey, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list access keys: %w", err)
	}
	defer rows.Close()

	var keys []AccessKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access key row: %w", err)
		}
		keys = append(keys, *key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access key rows: %w", err)
	}
	return keys, nil
}

func (r *KeyRepository) ListKeys() ([]AccessKey, error) {
	return r.listKeys(`SELECT ` + keyColumns + ` FROM access_keys ORDER BY id`)
}

func (r *KeyRepository) ListEnabledKeys() ([]AccessKey, error) {
	return r.listKeys(`SELECT ` + keyColumns + ` FROM access_keys WHERE enabled_at IS NOT NULL ORDER BY id`)
}

func (r *KeyRepository) CreateKey(key *AccessKey) error {
	now := time.Now().UTC()

	err := r.db.QueryRow(`
		INSERT INTO access_keys (content, enabled_at, namespace, timezone,
			first_send_start, first_send_end, layout_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, key.Content, toNullUnix(key.EnabledAt), key.Namespace, key.Timezone,
		key.FirstSendStart, key.FirstSendEnd, key.LayoutID,
		toUnix(now), toUnix(now)).Scan(&key.ID)

	if err != nil {
		return fmt.Errorf("failed to create access key: %w", err)
	}

	key.CreatedAt = now.Truncate(time.Second)
	key.UpdatedAt = key.CreatedAt
	return nil
}

func (r *KeyRepository) UpdateKey(key *AccessKey) error {
	_, err := r.db.Exec(`
		UPDATE access_keys
		SET enabled_at = ?, namespace = ?, timezone = ?,
			first_send_start = ?, first_send_end = ?, layout_id = ?,
			updated_at = ?
		WHERE id = ?
	`, toNullUnix(key.EnabledAt), key.Namespace, key.Timezone,
		key.FirstSendStart, key.FirstSendEnd, key.LayoutID,
		toUnix(time.Now()), key.ID)

	if err != nil {
		return fmt.Errorf("failed to update access key: %w", err)
	}
	return nil
}

// SetKeyEnabled enables or disables a key. Enabling records the moment the
// key became active; items published before it are never ingested.
func (r *KeyRepository) SetKeyEnabled(id int64, enabled bool) error {
	var enabledAt sql.NullInt64
	if enabled {
		enabledAt = sql.NullInt64{Int64: toUnix(time.Now()), Valid: true}
	}

	_, err := r.db.Exec(`
		UPDATE access_keys SET enabled_at = ?, updated_at = ? WHERE id = ?
	`, enabledAt, toUnix(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to set access key enabled state: %w", err)
	}
	return nil
}

func (r *KeyRepository) GetKeyCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM access_keys`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get access key count: %w", err)
	}
	return count, nil
}
